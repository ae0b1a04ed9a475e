package core

import (
	"sync"
	"testing"
)

func TestImageClassValid(t *testing.T) {
	for _, c := range []ImageClass{ClassProducts, ClassFlavors, ClassCategories} {
		if !c.Valid() {
			t.Errorf("%s reported invalid", c)
		}
	}
	for _, c := range []ImageClass{"", "banners", "Products"} {
		if c.Valid() {
			t.Errorf("%q reported valid", c)
		}
	}
}

func TestProcessedImageSavings(t *testing.T) {
	p := &ProcessedImage{Primary: make([]byte, 400), OriginalSize: 1000}
	if p.PrimarySize() != 400 {
		t.Errorf("primary size: got %d, want 400", p.PrimarySize())
	}
	if p.SavedBytes() != 600 {
		t.Errorf("saved: got %d, want 600", p.SavedBytes())
	}

	// WebP can come out larger than an already-optimized source.
	grew := &ProcessedImage{Primary: make([]byte, 1200), OriginalSize: 1000}
	if grew.SavedBytes() != -200 {
		t.Errorf("negative savings: got %d, want -200", grew.SavedBytes())
	}
}

func TestConversionStatsConcurrent(t *testing.T) {
	var stats ConversionStats
	stats.AddTotal(300)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stats.IncConverted()
				stats.AddSaved(10)
			}
		}()
	}
	wg.Wait()

	snap := stats.Snapshot()
	if snap.TotalImages != 300 {
		t.Errorf("total: got %d, want 300", snap.TotalImages)
	}
	if snap.Converted != 300 {
		t.Errorf("converted: got %d, want 300", snap.Converted)
	}
	if snap.SizeSaved != 3000 {
		t.Errorf("saved: got %d, want 3000", snap.SizeSaved)
	}
}
