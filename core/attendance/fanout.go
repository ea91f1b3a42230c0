package attendance

import (
	"encoding/json"
	"sync"
)

// fanOutLimit bounds the number of in-flight store calls of one fan-out.
var fanOutLimit = 16

// FanOutResult aggregates the outcome of independent per-item writes.
type FanOutResult struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors"`
}

type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}{e.ID, e.Err.Error()})
}

// fanOut calls fn once per index and returns after every call has settled.
// A failing call never stops the others. errs[i] is the result of fn(i).
func fanOut(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	sem := make(chan struct{}, fanOutLimit)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		sem <- struct{}{}
		go func(i int) {
			defer func() {
				<-sem
				wg.Done()
			}()
			errs[i] = fn(i)
		}(i)
	}
	wg.Wait()
	return errs
}

func collect(ids []string, errs []error) FanOutResult {
	res := FanOutResult{Errors: make([]ItemError, 0)}
	for i, err := range errs {
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, ItemError{ID: ids[i], Err: err})
			continue
		}
		res.Succeeded++
	}
	return res
}
