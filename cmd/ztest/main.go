// ztest runs zabi over a set of signature files and compares its output with golden files.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Golden is the recorded output of one file, keyed by the hash of the source it was made from.
type Golden struct {
	SourceHash string    `json:"source_hash"`
	Args       []string  `json:"args,omitempty"`
	Result     Execution `json:"result"`
}

type FileTestResult struct {
	File    string     `json:"file"`
	Status  string     `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string     `json:"message,omitempty"`
	Diff    string     `json:"diff,omitempty"`
	Golden  *Execution `json:"golden,omitempty"`
	Target  *Execution `json:"target,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	targetTool     = flag.String("target", "./zabi", "Path to the zabi binary under test.")
	targetArgs     = flag.String("target-args", "-p minimal", "Arguments passed to zabi before the source file (space-separated).")
	generateGolden = flag.Bool("generate-golden", false, "Record golden files for the selected test files instead of testing them.")
	testFiles      = flag.String("test-files", "testdata/*.sig", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each zabi run.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
	useCache       = flag.Bool("cached", false, "Skip files whose golden file was recorded from identical source.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
	ignoreLines    = flag.String("ignore-lines", "", "Comma-separated substrings to ignore during output comparison.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	if *generateGolden {
		for _, file := range files {
			if err := writeGolden(ctx, file); err != nil {
				log.Fatalf("%s[ERROR]%s %v\n", cRed, cNone, err)
			}
		}
		return
	}

	results := runTestSuite(ctx, files)
	if ctx.Err() != nil {
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled.\n", cYellow, cNone)
		os.Exit(1)
	}
	printSummary(results)
	if hasFailures(writeJSONReport(results)) {
		os.Exit(1)
	}
}

func getJSONPath(sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func toolArgs(file string) []string {
	return append(strings.Fields(*targetArgs), file)
}

func writeGolden(ctx context.Context, sourceFile string) error {
	fileHash, err := hashFile(sourceFile)
	if err != nil {
		return fmt.Errorf("could not hash source file %s: %w", sourceFile, err)
	}
	args := toolArgs(sourceFile)
	result := executeCommand(ctx, *targetTool, args...)
	if result.TimedOut {
		return fmt.Errorf("%s timed out on %s", *targetTool, sourceFile)
	}

	// Paths differ between machines; the golden only keeps the base name.
	args[len(args)-1] = filepath.Base(sourceFile)
	jsonData, err := json.MarshalIndent(Golden{SourceHash: fileHash, Args: args, Result: result}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal golden data: %w", err)
	}

	goldenFileName := getJSONPath(sourceFile)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", *jsonDir, err)
		}
	}
	if err := os.WriteFile(goldenFileName, jsonData, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file %s: %w", goldenFileName, err)
	}
	log.Printf("%s[SUCCESS]%s Golden file created at %s (exit code %d)\n", cGreen, cNone, goldenFileName, result.ExitCode)
	return nil
}

func runTestSuite(ctx context.Context, files []string) []*FileTestResult {
	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for range max(*jobs, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(ctx, file)
			}
		}()
	}

	// Files with identical content only need to run once.
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] || skipList[filepath.Base(file)] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- file
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})
	return allResults
}

func testFile(ctx context.Context, file string) *FileTestResult {
	goldenFile := getJSONPath(file)
	goldenData, err := os.ReadFile(goldenFile)
	if os.IsNotExist(err) {
		return &FileTestResult{File: file, Status: "SKIP", Message: "No golden file, run with -generate-golden first"}
	}
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var golden Golden
	if err := json.Unmarshal(goldenData, &golden); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	fileHash, err := hashFile(file)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: "Failed to hash source file"}
	}
	if golden.SourceHash != fileHash {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Source changed since the golden file was recorded, regenerate it"}
	}
	if *useCache {
		return &FileTestResult{File: file, Status: "SKIP", Message: "Golden file is current (cached)"}
	}

	result := executeCommand(ctx, *targetTool, toolArgs(file)...)
	if *verbose {
		log.Printf("[%s] exit code %d in %s", filepath.Base(file), result.ExitCode, result.Duration)
	}
	return compareResults(file, &golden.Result, &result)
}

func compareResults(file string, golden, target *Execution) *FileTestResult {
	var diffs strings.Builder
	var failed bool

	var ignoredSubstrings []string
	if *ignoreLines != "" {
		ignoredSubstrings = strings.Split(*ignoreLines, ",")
	}

	if target.TimedOut {
		return &FileTestResult{File: file, Status: "FAIL", Message: "zabi timed out", Golden: golden, Target: target}
	}
	if golden.ExitCode != target.ExitCode {
		failed = true
		fmt.Fprintf(&diffs, "Exit code mismatch:\n  - Golden: %d\n  - Target: %d\n", golden.ExitCode, target.ExitCode)
	}

	// Diagnostics mention the source path, which differs between machines.
	base := filepath.Base(file)
	targetStderr := strings.ReplaceAll(target.Stderr, file, base)

	if filterOutput(golden.Stdout, ignoredSubstrings) != filterOutput(target.Stdout, ignoredSubstrings) {
		failed = true
		fmt.Fprintf(&diffs, "STDOUT mismatch:\n%s", cmp.Diff(golden.Stdout, target.Stdout))
	}
	if filterOutput(golden.Stderr, ignoredSubstrings) != filterOutput(targetStderr, ignoredSubstrings) {
		failed = true
		fmt.Fprintf(&diffs, "STDERR mismatch:\n%s", cmp.Diff(golden.Stderr, targetStderr))
	}

	if failed {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Output or exit code mismatch", Diff: diffs.String(), Golden: golden, Target: target}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "Output matches golden file", Golden: golden, Target: target}
}

// executeCommand runs a command with a timeout and captures its output.
func executeCommand(ctx context.Context, command string, args ...string) Execution {
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	result := Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(startTime),
	}
	switch exitErr, isExit := err.(*exec.ExitError); {
	case ctx.Err() == context.DeadlineExceeded:
		result.TimedOut, result.ExitCode = true, -1
	case isExit:
		result.ExitCode = exitErr.ExitCode()
	case err != nil:
		result.ExitCode = -2
		result.Stderr += "\nExecution error: " + err.Error()
	}
	return result
}

// filterOutput removes lines containing any of the given substrings
func filterOutput(output string, ignoredSubstrings []string) string {
	if len(ignoredSubstrings) == 0 || output == "" {
		return output
	}
	lines := strings.Split(output, "\n")
	filteredLines := make([]string, 0, len(lines))
	for _, line := range lines {
		ignore := false
		for _, sub := range ignoredSubstrings {
			if sub != "" && strings.Contains(line, sub) {
				ignore = true
				break
			}
		}
		if !ignore {
			filteredLines = append(filteredLines, line)
		}
	}
	return strings.Join(filteredLines, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var total time.Duration
	var timed int

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		if result.Target != nil {
			timed++
			total += result.Target.Duration
			if *verbose {
				fmt.Printf("  zabi: %s\n", formatDuration(result.Target.Duration))
			}
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	if timed > 0 {
		fmt.Printf("Average zabi run: %s\n", strings.TrimSpace(formatDuration(total/time.Duration(timed))))
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0o755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}

	if err := os.WriteFile(outputFile, jsonData, 0o644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
