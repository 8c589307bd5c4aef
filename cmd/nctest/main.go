// nctest is a golden-file differential test harness for ncc: it
// compiles each test program, assembles and links the output with the
// system C compiler, runs the binary, and compares the observed
// behaviour (exit status, output, assembly digest) against a recorded
// golden JSON file.
//
// Typical usage:
//
//	nctest -compiler ./ncc -test-files 'tests/*.c' -generate
//	nctest -compiler ./ncc -test-files 'tests/*.c'
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

type Execution struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exitCode"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

type Golden struct {
	File        string    `json:"file"`
	AsmDigest   string    `json:"asm_digest,omitempty"`
	Compile     Execution `json:"compile"`
	Run         *Execution `json:"run,omitempty"`
	OptimizedOK bool      `json:"optimized_ok,omitempty"`
}

type FileResult struct {
	File    string `json:"file"`
	Status  string `json:"status"` // PASS, FAIL, ERROR
	Message string `json:"message,omitempty"`
	Diff    string `json:"diff,omitempty"`
}

var (
	compilerPath = flag.String("compiler", "./ncc", "Path to the ncc binary under test.")
	testFiles    = flag.String("test-files", "tests/*.c", "Glob pattern(s) for test programs (space-separated).")
	generate     = flag.Bool("generate", false, "Record golden files instead of comparing.")
	goldenDir    = flag.String("dir", "", "Directory for golden JSON files (defaults to the source file's dir).")
	timeout      = flag.Duration("timeout", 5*time.Second, "Timeout for each command execution.")
	jobs         = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose      = flag.Bool("v", false, "Enable verbose logging.")
)

const (
	cRed    = "\x1b[91m"
	cGreen  = "\x1b[92m"
	cYellow = "\x1b[93m"
	cReset  = "\x1b[0m"
)

func main() {
	flag.Parse()

	var files []string
	for _, pattern := range strings.Fields(*testFiles) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			log.Fatalf("bad glob %q: %v", pattern, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	if len(files) == 0 {
		log.Fatal("no test files matched")
	}

	results := make([]*FileResult, len(files))
	var wg sync.WaitGroup
	sem := make(chan struct{}, *jobs)
	for i, file := range files {
		wg.Add(1)
		go func(i int, file string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = runOne(file)
		}(i, file)
	}
	wg.Wait()

	failed := 0
	for _, res := range results {
		color := cGreen
		if res.Status != "PASS" {
			color = cRed
			failed++
		}
		fmt.Printf("%s%-5s%s %s", color, res.Status, cReset, res.File)
		if res.Message != "" {
			fmt.Printf("  %s(%s)%s", cYellow, res.Message, cReset)
		}
		fmt.Println()
		if res.Diff != "" && *verbose {
			fmt.Println(res.Diff)
		}
	}
	fmt.Printf("%d/%d passed\n", len(results)-failed, len(results))
	if failed > 0 {
		os.Exit(1)
	}
}

func goldenPath(file string) string {
	dir := *goldenDir
	if dir == "" {
		dir = filepath.Dir(file)
	}
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	return filepath.Join(dir, base+".golden.json")
}

func runOne(file string) *FileResult {
	actual, err := observe(file)
	if err != nil {
		return &FileResult{File: file, Status: "ERROR", Message: err.Error()}
	}

	if *generate {
		data, _ := json.MarshalIndent(actual, "", "  ")
		if err := os.WriteFile(goldenPath(file), append(data, '\n'), 0o644); err != nil {
			return &FileResult{File: file, Status: "ERROR", Message: err.Error()}
		}
		return &FileResult{File: file, Status: "PASS", Message: "golden recorded"}
	}

	data, err := os.ReadFile(goldenPath(file))
	if err != nil {
		return &FileResult{File: file, Status: "ERROR", Message: "missing golden (run with -generate)"}
	}
	var expected Golden
	if err := json.Unmarshal(data, &expected); err != nil {
		return &FileResult{File: file, Status: "ERROR", Message: "bad golden: " + err.Error()}
	}

	if diff := cmp.Diff(&expected, actual); diff != "" {
		return &FileResult{File: file, Status: "FAIL", Message: "behaviour changed", Diff: diff}
	}
	return &FileResult{File: file, Status: "PASS"}
}

// observe compiles, links, and runs one test program and records
// everything the golden file tracks.
func observe(file string) (*Golden, error) {
	golden := &Golden{File: file}

	asmText, compileRes := runCommand(*compilerPath, file)
	golden.Compile = compileRes
	if compileRes.ExitCode != 0 {
		// A rejected program is a valid golden: the diagnostic is the
		// expected behaviour.
		return golden, nil
	}
	golden.AsmDigest = fmt.Sprintf("%016x", xxhash.Sum64String(asmText))

	tmpDir, err := os.MkdirTemp("", "nctest-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	asmFile := filepath.Join(tmpDir, "out.s")
	if err := os.WriteFile(asmFile, []byte(asmText), 0o644); err != nil {
		return nil, err
	}
	binFile := filepath.Join(tmpDir, "out")
	if _, link := runCommand("cc", "-no-pie", "-o", binFile, asmFile); link.ExitCode != 0 {
		return nil, fmt.Errorf("cc failed: %s", link.Stderr)
	}

	run := execBinary(binFile)
	golden.Run = &run

	// The optimizer must not change observable behaviour.
	optAsm, optCompile := runCommand(*compilerPath, "-o", file)
	if optCompile.ExitCode == 0 {
		optAsmFile := filepath.Join(tmpDir, "opt.s")
		optBinFile := filepath.Join(tmpDir, "opt")
		if err := os.WriteFile(optAsmFile, []byte(optAsm), 0o644); err != nil {
			return nil, err
		}
		if _, link := runCommand("cc", "-no-pie", "-o", optBinFile, optAsmFile); link.ExitCode == 0 {
			optRun := execBinary(optBinFile)
			golden.OptimizedOK = optRun == run
		}
	}

	return golden, nil
}

func runCommand(name string, args ...string) (string, Execution) {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	res := Execution{
		Stderr:   stderr.String(),
		TimedOut: ctx.Err() == context.DeadlineExceeded,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil && res.ExitCode == 0 {
		res.ExitCode = 1
	}
	if *verbose {
		log.Printf("ran %s %s -> %d", name, strings.Join(args, " "), res.ExitCode)
	}
	return stdout.String(), res
}

func execBinary(path string) Execution {
	out, res := runCommand(path)
	res.Stdout = out
	return res
}
