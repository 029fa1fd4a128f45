package drive

import "sync"

// flightGroup collapses concurrent calls with the same key into one in-flight
// remote call; latecomers block and receive the first caller's result.
type flightGroup struct {
	mu    sync.Mutex
	calls map[string]*flightCall
}

type flightCall struct {
	wg     sync.WaitGroup
	result string
	err    error
}

func newFlightGroup() *flightGroup {
	return &flightGroup{calls: make(map[string]*flightCall)}
}

func (g *flightGroup) do(key string, fn func() (string, error)) (string, error) {
	g.mu.Lock()
	if call, ok := g.calls[key]; ok {
		g.mu.Unlock()
		call.wg.Wait()
		return call.result, call.err
	}
	call := new(flightCall)
	call.wg.Add(1)
	g.calls[key] = call
	g.mu.Unlock()

	call.result, call.err = fn()
	call.wg.Done()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	return call.result, call.err
}
