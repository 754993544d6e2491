package window_test

import (
	"testing"

	"github.com/bryanchriswhite/downscaler/internal/window"
	"github.com/bryanchriswhite/downscaler/internal/window/windowtest"
)

type treeBackend struct{ *windowtest.Tree }

func (treeBackend) Name() string { return "tree" }
func (treeBackend) Close() error { return nil }

func TestHideOmitsMirrorWindow(t *testing.T) {
	tree := newTree()
	var mirror window.Handle
	b := window.Hide(treeBackend{tree}, func() window.Handle { return mirror })

	nodes, err := b.TopLevel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 4 {
		t.Fatalf("expected 4 windows before the mirror exists, got %d", len(nodes))
	}

	mirror = 2
	nodes, _ = b.TopLevel()
	for _, n := range nodes {
		if n.Handle == 2 {
			t.Fatal("expected mirror window to be hidden")
		}
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(nodes))
	}

	if _, err := window.Find(b, window.Query{Text: "Game"}); err == nil {
		t.Fatal("expected hidden window not to be selectable")
	}
	if !b.Exists(2) {
		t.Fatal("expected other directory queries to pass through")
	}
}
