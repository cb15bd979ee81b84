package lease

import (
	"fmt"
	"sync"
	"testing"

	"github.com/jlauha/seuranta/internal/model"
)

func TestCache_LookupByAddress(t *testing.T) {
	cache := NewCache()

	if _, ok := cache.LookupByAddress("192.168.1.10"); ok {
		t.Error("empty cache should not resolve any address")
	}

	cache.Replace([]model.Lease{
		{IP: "192.168.1.10", Hostname: "laptop", MAC: "aa:bb:cc:dd:ee:ff"},
		{IP: "192.168.1.11", Hostname: "phone", MAC: "11:22:33:44:55:66"},
	})

	got, ok := cache.LookupByAddress("192.168.1.11")
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if got.MAC != "11:22:33:44:55:66" {
		t.Errorf("got MAC %s, want 11:22:33:44:55:66", got.MAC)
	}

	if _, ok := cache.LookupByAddress("192.168.1.99"); ok {
		t.Error("unknown address should not resolve")
	}
}

func TestCache_DuplicateAddressFirstMatchWins(t *testing.T) {
	cache := NewCache()
	cache.Replace([]model.Lease{
		{IP: "192.168.1.10", MAC: "aa:aa:aa:aa:aa:aa"},
		{IP: "192.168.1.10", MAC: "bb:bb:bb:bb:bb:bb"},
	})

	got, ok := cache.LookupByAddress("192.168.1.10")
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if got.MAC != "aa:aa:aa:aa:aa:aa" {
		t.Errorf("got MAC %s, want first match aa:aa:aa:aa:aa:aa", got.MAC)
	}
}

func TestCache_ReplaceDiscardsOldSnapshot(t *testing.T) {
	cache := NewCache()
	cache.Replace([]model.Lease{
		{IP: "192.168.1.10", MAC: "aa:bb:cc:dd:ee:ff"},
	})

	cache.Replace([]model.Lease{
		{IP: "192.168.1.20", MAC: "11:22:33:44:55:66"},
	})

	if _, ok := cache.LookupByAddress("192.168.1.10"); ok {
		t.Error("old snapshot should be gone after replace")
	}

	macs := cache.HardwareAddresses()
	if len(macs) != 1 || macs[0] != "11:22:33:44:55:66" {
		t.Errorf("HardwareAddresses() = %v, want [11:22:33:44:55:66]", macs)
	}
}

func TestCache_ReplaceNilClears(t *testing.T) {
	cache := NewCache()
	cache.Replace([]model.Lease{
		{IP: "192.168.1.10", MAC: "aa:bb:cc:dd:ee:ff"},
	})

	cache.Replace(nil)

	if got := cache.HardwareAddresses(); len(got) != 0 {
		t.Errorf("HardwareAddresses() after clear = %v, want empty", got)
	}
	if cache.Len() != 0 {
		t.Errorf("Len() after clear = %d, want 0", cache.Len())
	}
}

func TestCache_SnapshotIsACopy(t *testing.T) {
	cache := NewCache()
	cache.Replace([]model.Lease{
		{IP: "192.168.1.10", MAC: "aa:bb:cc:dd:ee:ff"},
	})

	snap := cache.Snapshot()
	snap[0].MAC = "mutated"

	got, _ := cache.LookupByAddress("192.168.1.10")
	if got.MAC != "aa:bb:cc:dd:ee:ff" {
		t.Error("mutating a snapshot copy must not affect the cache")
	}
}

func TestCache_ConcurrentReplaceAndRead(t *testing.T) {
	cache := NewCache()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				cache.Replace([]model.Lease{
					{IP: fmt.Sprintf("10.0.0.%d", n), MAC: "aa:bb:cc:dd:ee:ff"},
				})
			}
		}(i)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				cache.HardwareAddresses()
				cache.LookupByAddress("10.0.0.1")
				cache.Snapshot()
			}
		}()
	}
	wg.Wait()

	// every snapshot had exactly one lease; readers must never have seen a
	// partial state, and the final state is intact
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}
