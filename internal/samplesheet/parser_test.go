package samplesheet

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testRules = Rules{ControlMarkers: []string{"Negativ"}, TestFixtures: []string{"Test"}}

const sheet = `[Header]
IEMFileVersion,4
Investigator Name,MJH
Experiment Name,Sample_Project lookalike,
Date,14.03.2022

[Reads]
151
151

[Data]
Sample_ID,Sample_Name,Sample_Plate,Sample_Well,I7_Index_ID,index,Sample_Project,Description
S1,S1,,,N701,TAAGGCGA,SAV-amplicon-MJH,
S2,S2,,,N702,CGTACTAG,SAV-amplicon-MJH,
S3,S3,,,N703,AGGCAGAA,SAV-amplicon-MJH,
NEG,NEG,,,N704,TCCTGAGC,Negativ,
`

func TestParse_ScenarioAmpliconWithNegative(t *testing.T) {
	ps, err := Parse(strings.NewReader(sheet), testRules)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("want 2 projects, got %d: %+v", len(ps), ps)
	}
	if ps[0].RawName != "SAV-amplicon-MJH" || ps[0].Kind != Standard {
		t.Fatalf("first project: %+v", ps[0])
	}
	if ps[1].RawName != "Negativ" || ps[1].Kind != ControlNegative {
		t.Fatalf("second project: %+v", ps[1])
	}
}

func TestParse_FirstSeenOrderNoDuplicates(t *testing.T) {
	in := "Sample_ID,Sample_Project\n1,B\n2,A\n3,B\n4,C\n5,A\n"
	ps, err := Parse(strings.NewReader(in), Rules{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var got []string
	for _, p := range ps {
		got = append(got, p.RawName)
	}
	if strings.Join(got, ",") != "B,A,C" {
		t.Fatalf("order: got %v", got)
	}
}

func TestParse_NoHeaderIsEmptyInput(t *testing.T) {
	in := "[Header]\nDate,2022\n[Data]\nSample_ID,Sample_Name\nS1,S1\n"
	_, err := Parse(strings.NewReader(in), Rules{})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("want ErrEmptyInput, got %v", err)
	}
}

func TestParse_HeaderWithoutRowsIsEmptyInput(t *testing.T) {
	_, err := Parse(strings.NewReader("Sample_ID,Sample_Project\n,\n\n"), Rules{})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("want ErrEmptyInput, got %v", err)
	}
}

func TestParse_ShortRowsAndBlankValuesSkipped(t *testing.T) {
	in := "Sample_ID,Sample_Name,Sample_Project\nS1\nS2,S2,\nS3,S3,  P1  \n"
	ps, err := Parse(strings.NewReader(in), Rules{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ps) != 1 || ps[0].RawName != "P1" {
		t.Fatalf("got %+v", ps)
	}
}

func TestParse_BOMStripped(t *testing.T) {
	in := "\xEF\xBB\xBFSample_Project\nP1\n"
	ps, err := Parse(strings.NewReader(in), Rules{})
	if err != nil || len(ps) != 1 {
		t.Fatalf("got %+v err=%v", ps, err)
	}
}

func TestParse_CharacterPolicy(t *testing.T) {
	for _, bad := range []string{"../etc", "a/b", "..", "Prøve"} {
		in := "Sample_Project\n" + bad + "\n"
		_, err := Parse(strings.NewReader(in), Rules{})
		if !errors.Is(err, ErrInvalidProjectName) {
			t.Fatalf("%q: want ErrInvalidProjectName, got %v", bad, err)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"Negativ":   ControlNegative,
		"Test":      TestFixture,
		"negativ":   Standard,
		"Negativ-2": Standard,
	}
	for name, want := range cases {
		if got := testRules.Classify(name); got != want {
			t.Fatalf("%s: want %v got %v", name, want, got)
		}
	}
}

func TestParseFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "SampleSheet.csv")
	if err := os.WriteFile(fn, []byte(sheet), 0o644); err != nil {
		t.Fatal(err)
	}
	ps, err := ParseFile(fn, testRules)
	if err != nil {
		t.Fatalf("parse file: %v", err)
	}
	if got := ps[0].Canonical("220314_M06578"); got != "220314_M06578.SAV-amplicon-MJH" {
		t.Fatalf("canonical: %s", got)
	}
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.csv"), testRules); err == nil {
		t.Fatal("expected error for missing file")
	}
}
