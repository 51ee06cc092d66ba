package phmap

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// forEachRow runs fn once per row, spread over at most `workers`
// goroutines (<=0 means GOMAXPROCS). Each call owns its row, so the
// output needs no locking.
func forEachRow(workers, rows int, fn func(y int)) {
	if rows <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 || rows == 1 {
		for y := 0; y < rows; y++ {
			fn(y)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for y := 0; y < rows; y++ {
		y := y
		g.Go(func() error {
			fn(y)
			return nil
		})
	}
	g.Wait()
}
