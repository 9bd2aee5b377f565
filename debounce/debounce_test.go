package debounce

import (
	"sync"
	"testing"
)

func TestIdleSubmitRunsImmediately(t *testing.T) {
	var m Mailbox
	done := make(chan int, 1)
	m.Submit(func() { done <- 1 })
	if v := <-done; v != 1 {
		t.Fatal("job did not run")
	}
	m.Wait()
	if m.Busy() {
		t.Error("mailbox should be idle after its only job")
	}
}

func TestBurstKeepsOnlyLatest(t *testing.T) {
	var (
		m       Mailbox
		mu      sync.Mutex
		seen    []int
		release = make(chan struct{})
		started = make(chan struct{})
	)
	m.Submit(func() {
		close(started)
		<-release
		mu.Lock()
		seen = append(seen, 0)
		mu.Unlock()
	})
	<-started
	for i := 1; i <= 100; i++ {
		i := i
		m.Submit(func() {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		})
	}
	close(release)
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 100 {
		t.Errorf("expected the running job then the latest, got %v", seen)
	}
	ran, dropped := m.Stats()
	if ran != 2 || dropped != 99 {
		t.Errorf("ran %d dropped %d, expected 2 and 99", ran, dropped)
	}
}

func TestNeverConcurrent(t *testing.T) {
	var (
		m      Mailbox
		mu     sync.Mutex
		active int
		peak   int
		wg     sync.WaitGroup
	)
	job := func() {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		for i := 0; i < 1000; i++ {
			_ = i * i
		}
		mu.Lock()
		active--
		mu.Unlock()
	}
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.Submit(job)
			}
		}()
	}
	wg.Wait()
	m.Wait()
	if peak != 1 {
		t.Errorf("%d jobs ran at once", peak)
	}
}

func TestPanicRecovered(t *testing.T) {
	m := Mailbox{Name: "test"}
	m.Submit(func() { panic("boom") })
	m.Wait()
	ok := make(chan bool, 1)
	m.Submit(func() { ok <- true })
	if !<-ok {
		t.Error("mailbox should keep working after a panic")
	}
	m.Wait()
}

func TestFuncUsesLatestArgument(t *testing.T) {
	release := make(chan struct{})
	got := make(chan string, 4)
	f := New("args", func(s string) {
		if s == "first" {
			<-release
		}
		got <- s
	})
	f.Call("first")
	for _, s := range []string{"a", "b", "c"} {
		f.Call(s)
	}
	close(release)
	f.Wait()
	close(got)
	var all []string
	for s := range got {
		all = append(all, s)
	}
	if len(all) != 2 || all[0] != "first" || all[1] != "c" {
		t.Errorf("expected [first c], got %v", all)
	}
}
