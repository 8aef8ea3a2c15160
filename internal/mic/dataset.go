// Package mic holds Burtin's antibiotic dataset: minimum inhibitory
// concentrations of penicillin, streptomycin and neomycin for sixteen bacteria,
// together with the column roles used to reshape it for plotting.
package mic

import (
	"sync"

	"micdash/pkg/frame"
)

// Column names of the wide table.
const (
	ColBacteria     = "Bacteria"
	ColPenicillin   = "Penicillin"
	ColStreptomycin = "Streptomycin"
	ColNeomycin     = "Neomycin"
	ColGramStaining = "Gram_Staining"
	ColGenus        = "Genus"

	// Added by the reshape.
	ColAntibiotic = "Antibiotic"
	ColMIC        = "MIC"
)

// Unit of every MIC measurement.
const Unit = "µg/mL"

// Gram staining categories.
const (
	GramPositive = "positive"
	GramNegative = "negative"
)

// Record is one bacterium with its MIC against each antibiotic.
type Record struct {
	Bacteria     string
	Genus        string
	GramStaining string
	Penicillin   float64
	Streptomycin float64
	Neomycin     float64
}

var records = []Record{
	{"Aerobacter aerogenes", "other", GramNegative, 870, 1, 1.6},
	{"Bacillus anthracis", "other", GramPositive, 0.001, 0.01, 0.007},
	{"Brucella abortus", "other", GramNegative, 1, 2, 0.02},
	{"Diplococcus pneumoniae", "other", GramPositive, 0.005, 11, 10},
	{"Escherichia coli", "other", GramNegative, 100, 0.4, 0.1},
	{"Klebsiella pneumoniae", "other", GramNegative, 850, 1.2, 1},
	{"Mycobacterium tuberculosis", "other", GramNegative, 800, 5, 2},
	{"Proteus vulgaris", "other", GramNegative, 3, 0.1, 0.1},
	{"Pseudomonas aeruginosa", "other", GramNegative, 850, 2, 0.4},
	{"Salmonella (Eberthella) typhosa", "Salmonella", GramNegative, 1, 0.4, 0.008},
	{"Salmonella schottmuelleri", "Salmonella", GramNegative, 10, 0.8, 0.09},
	{"Staphylococcus albus", "Staphylococcus", GramPositive, 0.007, 0.1, 0.001},
	{"Staphylococcus aureus", "Staphylococcus", GramPositive, 0.03, 0.03, 0.001},
	{"Streptococcus fecalis", "Streptococcus", GramPositive, 1, 1, 0.1},
	{"Streptococcus hemolyticus", "Streptococcus", GramPositive, 0.001, 14, 10},
	{"Streptococcus viridans", "Streptococcus", GramPositive, 0.005, 10, 40},
}

// Records returns a copy of the dataset literal.
func Records() []Record {
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

// IdentityColumns are carried through the reshape unchanged.
func IdentityColumns() []string {
	return []string{ColBacteria, ColGramStaining, ColGenus}
}

// Antibiotics are the measurement columns, in plotting order.
func Antibiotics() []string {
	return []string{ColPenicillin, ColStreptomycin, ColNeomycin}
}

// MeltSpec is the reshape applied to the wide table.
func MeltSpec() frame.MeltSpec {
	return frame.MeltSpec{
		IDColumns:    IdentityColumns(),
		ValueColumns: Antibiotics(),
		VarName:      ColAntibiotic,
		ValueName:    ColMIC,
	}
}

// Schema is the wide table schema in the literal's column order.
func Schema() []frame.Column {
	return []frame.Column{
		{Name: ColBacteria, Type: frame.TypeString, Description: "Bacterium"},
		{Name: ColPenicillin, Type: frame.TypeNumber, Unit: Unit},
		{Name: ColStreptomycin, Type: frame.TypeNumber, Unit: Unit},
		{Name: ColNeomycin, Type: frame.TypeNumber, Unit: Unit},
		{Name: ColGramStaining, Type: frame.TypeString, Description: "Gram staining"},
		{Name: ColGenus, Type: frame.TypeString},
	}
}

// Wide builds the wide table from the literal.
func Wide() frame.Table {
	rows := make([]frame.Row, len(records))
	for i, r := range records {
		rows[i] = frame.Row{
			ColBacteria:     r.Bacteria,
			ColPenicillin:   r.Penicillin,
			ColStreptomycin: r.Streptomycin,
			ColNeomycin:     r.Neomycin,
			ColGramStaining: r.GramStaining,
			ColGenus:        r.Genus,
		}
	}
	return frame.Table{Columns: Schema(), Rows: rows}
}

var (
	longOnce  sync.Once
	longTable frame.Table
	longErr   error
)

// Long returns the reshaped table. It is derived once per process; callers get
// their own copy.
func Long() (frame.Table, error) {
	longOnce.Do(func() {
		longTable, longErr = frame.Melt(Wide(), MeltSpec())
	})
	if longErr != nil {
		return frame.Table{}, longErr
	}
	return longTable.Clone(), nil
}
