package main

import (
	"fmt"
	"time"

	"github.com/setlistvote/setlistvote/internal/model"
	"github.com/setlistvote/setlistvote/internal/repository"
)

// seedDemo loads one upcoming show with a five-song setlist so the API can
// be exercised without a database.
func seedDemo(mem *repository.MemoryStore, now time.Time) {
	mem.AddShow(model.Show{
		ID:     "demo-show",
		Date:   now.Add(5 * 24 * time.Hour),
		Status: model.ShowStatusUpcoming,
	})
	mem.AddSetlist("demo-setlist", "demo-show")
	for i := 1; i <= 5; i++ {
		mem.AddSetlistSong(model.SetlistSong{
			ID:        fmt.Sprintf("demo-ss-%d", i),
			SetlistID: "demo-setlist",
			SongID:    fmt.Sprintf("demo-song-%d", i),
			Position:  i,
		})
	}
}
