//go:build unix

package pages

import "testing"

func TestMmapProvider(t *testing.T) {
	budget := NewBudget(0)
	p, err := NewMmapProvider(budget)
	if err != nil {
		t.Fatal(err)
	}

	r, err := p.RequestPages(3)
	if err != nil {
		t.Fatalf("RequestPages failed: %v", err)
	}
	if r.Len() != 3*PageWords {
		t.Fatalf("expected %d words, got %d", 3*PageWords, r.Len())
	}
	r.Words[0] = 42
	r.Words[r.Len()-1] = 7
	if r.Words[0] != 42 || r.Words[r.Len()-1] != 7 {
		t.Fatal("mapped memory not writable")
	}
	if p.InUse() != 3 {
		t.Fatalf("expected 3 pages in use, got %d", p.InUse())
	}

	if err := p.ReleasePages(r); err != nil {
		t.Fatalf("ReleasePages failed: %v", err)
	}
	if budget.Used() != 0 {
		t.Fatalf("expected budget to be returned, got %d", budget.Used())
	}
	if err := p.ReleasePages(r); err == nil {
		t.Fatal("double release should fail")
	}
}
