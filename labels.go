package medeye

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadLabels reads the class labels the detection model was trained on from
// the given text file, one label per line.  Blank lines are skipped so the
// label index keeps matching the model's class ids.
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening label file: %w", err)
	}

	defer f.Close()

	var labels []string

	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		label := strings.TrimSpace(scanner.Text())

		if label == "" {
			continue
		}

		labels = append(labels, label)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading label file: %w", err)
	}

	return labels, nil
}

// DefaultLabels returns the class labels of the medicine detection model the
// scanner ships with
func DefaultLabels() []string {
	return []string{
		"biogesic",
		"bioflu",
		"neozep",
		"alaxan",
		"medicol",
		"decolgen",
	}
}

// DefaultClassKeywords returns the per-class keyword lists used by the
// fusion policy to cross-validate a detection against OCR text.  Keys are
// class indexes into DefaultLabels.
func DefaultClassKeywords() map[int][]string {
	return map[int][]string{
		0: {"biogesic", "paracetamol"},
		1: {"bioflu", "phenylephrine"},
		2: {"neozep", "forte"},
		3: {"alaxan", "ibuprofen"},
		4: {"medicol", "advance"},
		5: {"decolgen", "no-drowse"},
	}
}
