package main

import (
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

//Gate caps in-flight fetches globally and per remote host. Host slots are
//created lazily and live for the whole run.
type Gate struct {
	global  chan struct{}
	perHost int
	mu      sync.Mutex
	hosts   map[string]chan struct{}
}

//NewGate builds a gate with the given global and per-host budgets
func NewGate(global, perHost int) *Gate {
	if global < 1 {
		global = 1
	}
	if perHost < 1 {
		perHost = 1
	}
	return &Gate{
		global:  make(chan struct{}, global),
		perHost: perHost,
		hosts:   make(map[string]chan struct{}),
	}
}

func (g *Gate) hostSlots(host string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	slots, ok := g.hosts[host]
	if !ok {
		slots = make(chan struct{}, g.perHost)
		g.hosts[host] = slots
	}
	return slots
}

// Acquire blocks until both the global and the host budget admit one fetch.
func (g *Gate) Acquire(host string) {
	g.global <- struct{}{}
	g.hostSlots(host) <- struct{}{}
}

// Release returns both slots. Must run on every fetch path, error or not.
func (g *Gate) Release(host string) {
	<-g.hostSlots(host)
	<-g.global
}

//Fetcher retrieves single tiles with a fixed timeout and a bounded retry
//budget. Exhausted retries yield nil, never an error: a missing tile is
//normal and gets counted as skipped by the caller.
type Fetcher struct {
	client   *http.Client
	gate     *Gate
	retries  int
	delay    time.Duration
	minBytes int
	sleep    func(time.Duration)
}

//NewFetcher builds a fetcher sharing one tuned transport per run
func NewFetcher(gate *Gate, timeout time.Duration, retries int, delay time.Duration) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        cap(gate.global),
		MaxIdleConnsPerHost: gate.perHost,
		MaxConnsPerHost:     gate.perHost,
		IdleConnTimeout:     time.Second * 5,
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		gate:     gate,
		retries:  retries,
		delay:    delay,
		minBytes: 100,
		sleep:    time.Sleep,
	}
}

// Fetch gets one tile. nil means no usable data after all attempts.
func (f *Fetcher) Fetch(rawURL string) []byte {
	host := urlHost(rawURL)
	for attempt := 0; attempt <= f.retries; attempt++ {
		data, err := f.fetchOnce(rawURL, host)
		if data != nil {
			return data
		}
		if err != nil {
			log.Debugf("fetch %s error, details: %s ~", rawURL, err)
			if attempt < f.retries {
				f.sleep(f.delay)
			}
		}
	}
	return nil
}

func (f *Fetcher) fetchOnce(rawURL, host string) ([]byte, error) {
	f.gate.Acquire(host)
	defer f.gate.Release(host)

	resp, err := f.client.Get(rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Debugf("fetch %s tile error, status code: %d ~", rawURL, resp.StatusCode)
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(body) <= f.minBytes {
		// error placeholder images come back tiny
		return nil, nil
	}
	return body, nil
}

func urlHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
