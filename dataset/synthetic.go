package dataset

import (
	"encoding/csv"
	"io"
	"math/rand/v2"
	"strconv"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// DrugHeader is the column layout of the drug dataset.
var DrugHeader = []string{"Age", "Sex", "BP", "Cholesterol", "Na_to_K", "Drug"}

// GenerateDrugTable builds n synthetic patient records with five drug
// classes following the rules of the public drug200 dataset. A fraction
// missingRate of the Age and Na_to_K cells is left empty. The same seed
// always yields the same table.
func GenerateDrugTable(n int, seed uint64, missingRate float64) *Table {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	sexes := []string{"F", "M"}
	bps := []string{"HIGH", "LOW", "NORMAL"}
	chols := []string{"HIGH", "NORMAL"}

	records := make([][]string, n)
	for i := range records {
		age := 15 + rng.IntN(60)
		sex := sexes[rng.IntN(len(sexes))]
		bp := bps[rng.IntN(len(bps))]
		chol := chols[rng.IntN(len(chols))]
		naToK := 6 + rng.Float64()*32

		var drug string
		switch {
		case naToK > 15:
			drug = "DrugY"
		case bp == "HIGH" && age < 50:
			drug = "drugA"
		case bp == "HIGH":
			drug = "drugB"
		case bp == "LOW" && chol == "HIGH":
			drug = "drugC"
		default:
			drug = "drugX"
		}

		ageCell := strconv.Itoa(age)
		if rng.Float64() < missingRate {
			ageCell = ""
		}
		naCell := strconv.FormatFloat(naToK, 'f', 3, 64)
		if rng.Float64() < missingRate {
			naCell = ""
		}
		records[i] = []string{ageCell, sex, bp, chol, naCell, drug}
	}

	return &Table{header: append([]string(nil), DrugHeader...), records: records}
}

// WriteCSV writes the table as CSV with a header line.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}
	if err := cw.WriteAll(t.records); err != nil {
		return errors.Wrap(err, "failed to write CSV records")
	}
	return nil
}
