// Package hostgroup fans a scan out over a named group of hosts.
package hostgroup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"
)

// DefaultConcurrency bounds how many hosts are scanned at once.
const DefaultConcurrency = 8

type HostGroup struct {
	sync.RWMutex
	Hosts map[string]struct{}

	// Limiter, when set, paces how fast actions start.
	Limiter *rate.Limiter
}

// NewHostGroup creates a new HostGroup with the given host aliases.
func NewHostGroup(hosts ...string) *HostGroup {
	hostMap := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		hostMap[h] = struct{}{}
	}
	return &HostGroup{Hosts: hostMap}
}

// AddHost adds a host to the HostGroup.
func (hg *HostGroup) AddHost(host string) {
	hg.Lock()
	defer hg.Unlock()
	hg.Hosts[host] = struct{}{}
}

// RemoveHost removes a host from the HostGroup.
func (hg *HostGroup) RemoveHost(host string) {
	hg.Lock()
	defer hg.Unlock()
	delete(hg.Hosts, host)
}

// HasHost checks if host is part of the HostGroup.
func (hg *HostGroup) HasHost(host string) bool {
	hg.RLock()
	defer hg.RUnlock()
	_, exists := hg.Hosts[host]
	return exists
}

// List returns the hosts in sorted order. Run indexes hosts by this order.
func (hg *HostGroup) List() []string {
	hg.RLock()
	defer hg.RUnlock()
	hosts := make([]string, 0, len(hg.Hosts))
	for h := range hg.Hosts {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Run calls action once per host with at most maxConcurrency calls in
// flight. i is the host's position in List. Every host is attempted; the
// returned error aggregates all failures.
func (hg *HostGroup) Run(ctx context.Context, maxConcurrency int, action func(ctx context.Context, i int, host string) error) error {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultConcurrency
	}
	hosts := hg.List()

	sem := make(chan struct{}, maxConcurrency)
	errCh := make(chan error, len(hosts))
	var wg sync.WaitGroup

	for i, h := range hosts {
		wg.Add(1)
		go func(i int, h string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if hg.Limiter != nil {
				if err := hg.Limiter.Wait(ctx); err != nil {
					errCh <- fmt.Errorf("host %s: %w", h, err)
					return
				}
			}
			if err := action(ctx, i, h); err != nil {
				errCh <- fmt.Errorf("host %s: %w", h, err)
			}
		}(i, h)
	}

	wg.Wait()
	close(errCh)

	var result *multierror.Error
	for err := range errCh {
		result = multierror.Append(result, err)
	}

	if result != nil {
		for _, err := range result.Errors {
			slog.Error("Host processing error", "error", err)
		}
		return result
	}

	return nil
}
