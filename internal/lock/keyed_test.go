package lock

import (
	"sync"
	"testing"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(1)
			v := counter
			v++
			counter = v
			unlock()
		}()
	}
	wg.Wait()

	if counter != 200 {
		t.Fatalf("counter = %d; want 200", counter)
	}
	if k.Len() != 0 {
		t.Fatalf("entries leaked: %d", k.Len())
	}
}

func TestKeyedIndependentKeys(t *testing.T) {
	k := NewKeyed()
	unlockA := k.Lock(1)
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock(2)
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
