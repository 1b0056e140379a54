//go:build ignore

// Package main generates a synthetic source corpus for exercising hindex.
// Usage: go run scripts/generate-test-corpus.go -files 200 -output testdata/corpus
//
// The generated tree mirrors the shapes the indexer sees in production:
// markdown playbooks and transcripts (multi-paragraph prose), CSV cost
// tables, and JSON record arrays.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 200, "Number of files to generate")
	outputDir = flag.String("output", "testdata/corpus", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Word pools for generating plausible travel content.
var (
	places = []string{
		"Lisbon", "Kyoto", "Oaxaca", "Hanoi", "Marrakech",
		"Tbilisi", "Medellin", "Palermo", "Busan", "Valparaiso",
		"Ljubljana", "Chiang Mai", "Porto", "Cartagena", "Sarajevo",
	}
	subjects = []string{
		"street food", "night market", "old town", "coastline", "rooftop",
		"tram ride", "fish market", "temple walk", "coffee crawl", "sunrise hike",
	}
	shots = []string{
		"wide establishing", "slow push-in", "handheld follow", "top-down plate",
		"whip pan", "timelapse", "walking POV", "close-up detail", "drone orbit",
	}
	beats = []string{
		"hook", "context drop", "first taste", "price reveal", "local tip",
		"transition", "payoff", "call to action",
	}
)

// mdTemplate is a playbook-style document: several prose paragraphs split
// by blank lines, long enough to force sentence windowing.
var mdTemplate = `# %s Reel Playbook: %s

The opening three seconds decide everything. Start on a %s shot of the %s
before any talking begins. Keep the first line under ten words. Viewers
who survive the hook stay for the %s beat, so place the most surprising
visual there rather than saving it for the end.

Shot list matters more than gear. A %s into a %s covers most transitions
in this format. Shoot every scene twice, once wide and once tight, and
keep clips under six seconds so the edit never drags. Audio from the
street beats music on the first beat.

Pricing details anchor trust. Name the exact cost of the %s on screen,
in local currency and converted. A %s works well over the price reveal.
Close with one local tip nobody puts in guidebooks, then a direct
question to the audience. End the caption with where to find part two.
`

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	subdirs := []string{"playbooks", "transcripts", "tables", "records"}
	for _, subdir := range subdirs {
		if err := os.MkdirAll(filepath.Join(*outputDir, subdir), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating subdirectory %s: %v\n", subdir, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d files in %s...\n", *numFiles, *outputDir)

	// Distribution mirrors a real source tree: mostly prose, some tables.
	mdFiles := *numFiles * 40 / 100
	txtFiles := *numFiles * 30 / 100
	csvFiles := *numFiles * 20 / 100
	jsonFiles := *numFiles - mdFiles - txtFiles - csvFiles

	generated := 0
	for i := 0; i < mdFiles; i++ {
		if err := generateMarkdown(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating markdown %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < txtFiles; i++ {
		if err := generateTranscript(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating transcript %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < csvFiles; i++ {
		if err := generateCostTable(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating csv %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < jsonFiles; i++ {
		if err := generateRecords(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating json %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("Generated %d files successfully.\n", generated)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func generateMarkdown(rng *rand.Rand, index int) error {
	place := pick(rng, places)
	content := fmt.Sprintf(mdTemplate,
		place, pick(rng, subjects),
		pick(rng, shots), pick(rng, subjects),
		pick(rng, beats),
		pick(rng, shots), pick(rng, shots),
		pick(rng, subjects), pick(rng, shots),
	)

	filename := filepath.Join(*outputDir, "playbooks",
		fmt.Sprintf("%s_playbook_%d.md", strings.ToLower(strings.ReplaceAll(place, " ", "_")), index))
	return os.WriteFile(filename, []byte(content), 0644)
}

// generateTranscript writes spoken-style prose: one long paragraph per
// scene, sentence after sentence, the worst case for the windowing code.
func generateTranscript(rng *rand.Rand, index int) error {
	var b strings.Builder
	place := pick(rng, places)
	fmt.Fprintf(&b, "Transcript, %s %s episode.\n\n", place, pick(rng, subjects))

	scenes := 2 + rng.Intn(3)
	for s := 0; s < scenes; s++ {
		sentences := 8 + rng.Intn(8)
		for i := 0; i < sentences; i++ {
			fmt.Fprintf(&b, "Scene %d take on the %s with a %s at the %s beat. ",
				s+1, pick(rng, subjects), pick(rng, shots), pick(rng, beats))
		}
		b.WriteString("\n\n")
	}

	filename := filepath.Join(*outputDir, "transcripts",
		fmt.Sprintf("episode_%03d.txt", index))
	return os.WriteFile(filename, []byte(b.String()), 0644)
}

func generateCostTable(rng *rand.Rand, index int) error {
	var b strings.Builder
	b.WriteString("Trip,Item,Cost,Currency,Notes\n")

	rows := 5 + rng.Intn(10)
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%s,%s,%d,%s,%s\n",
			pick(rng, places), pick(rng, subjects), 3+rng.Intn(80),
			"USD", pick(rng, beats))
	}

	filename := filepath.Join(*outputDir, "tables",
		fmt.Sprintf("costs_%03d.csv", index))
	return os.WriteFile(filename, []byte(b.String()), 0644)
}

func generateRecords(rng *rand.Rand, index int) error {
	type record struct {
		Place    string `json:"place"`
		Subject  string `json:"subject"`
		Shot     string `json:"shot"`
		Duration int    `json:"duration_s"`
	}

	records := make([]record, 3+rng.Intn(6))
	for i := range records {
		records[i] = record{
			Place:    pick(rng, places),
			Subject:  pick(rng, subjects),
			Shot:     pick(rng, shots),
			Duration: 3 + rng.Intn(8),
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	filename := filepath.Join(*outputDir, "records",
		fmt.Sprintf("shotlist_%03d.json", index))
	return os.WriteFile(filename, append(data, '\n'), 0644)
}
