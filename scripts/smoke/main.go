// Command smoke probes a running UniReg deployment and verifies that a
// configured set of endpoints answers with the expected status codes.
// Intended for post-deploy checks; a failing critical probe exits nonzero.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type probe struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Expect   int    `json:"expect"`
	Critical bool   `json:"critical"`
}

type config struct {
	Probes []probe `json:"probes"`
}

type result struct {
	Probe    probe
	Status   int
	Duration time.Duration
	Error    error
}

func main() {
	var (
		base       string
		probesPath string
		timeout    time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&probesPath, "probes", filepath.Join("scripts", "smoke", "probes.json"), "Path to JSON probes file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	probes, err := loadProbes(probesPath)
	if err != nil {
		log.Fatalf("failed to load probes: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		results  []result
		breaking int
		warnings int
	)

	for _, p := range probes {
		res := runProbe(client, base, p)
		if res.Error != nil || res.Status != expected(p) {
			if p.Critical {
				breaking++
			} else {
				warnings++
			}
		}
		results = append(results, res)
	}

	printReport(results)

	fmt.Printf("Critical failures: %d, Warnings: %d\n", breaking, warnings)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadProbes(path string) ([]probe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Probes) == 0 {
		return nil, fmt.Errorf("no probes defined in %s", path)
	}
	return cfg.Probes, nil
}

func expected(p probe) int {
	if p.Expect > 0 {
		return p.Expect
	}
	return http.StatusOK
}

func runProbe(client *http.Client, base string, p probe) result {
	res := result{Probe: p}
	if client == nil {
		res.Error = errors.New("nil client")
		return res
	}

	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := p.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimRight(base, "/") + path

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		res.Error = err
		return res
	}
	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	return res
}

func printReport(results []result) {
	fmt.Println("Smoke Check Report")
	fmt.Println("==================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if res.Status != expected(res.Probe) {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Probe.Method, res.Probe.Path)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		fmt.Printf("  Status: %d, expected %d (%s) | Critical: %t\n", res.Status, expected(res.Probe), res.Duration, res.Probe.Critical)
	}
}
