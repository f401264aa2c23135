package main

import (
	"github.com/grexlab/grex/gwas"
	"github.com/grexlab/grex/posterior"
	"github.com/grexlab/grex/reml"
)

// CallSummary stores information about a grex call.
type CallSummary struct {
	// Version stores grex version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Command is the subcommand run.
	Command string `json:"command"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// Time is the computations time in seconds.
	TotalTime float64 `json:"time"`
	// Result is the command specific summary.
	Result interface{} `json:"result,omitempty"`
}

// FitSummary is the summary of a REML fit.
type FitSummary struct {
	N      int          `json:"n"`
	Terms  []string     `json:"terms"`
	Result *reml.Result `json:"result"`
}

// BayesSummary is the summary of an MCMC run.
type BayesSummary struct {
	N         int             `json:"n"`
	Phenotype string          `json:"phenotype"`
	Model     string          `json:"model"`
	Chains    int             `json:"chains"`
	Dropped   int             `json:"droppedChains"`
	Time      float64         `json:"samplingTime"`
	Posterior []posterior.Row `json:"posterior"`
}

// SimulationSummary is the summary of a phenotype simulation.
type SimulationSummary struct {
	N      int     `json:"n"`
	SNPs   int     `json:"snps"`
	TrueH2 float64 `json:"trueH2"`
	TrueD2 float64 `json:"trueD2"`
}

// GRMSummary is the summary of a GRM computation.
type GRMSummary struct {
	N           int      `json:"n"`
	SNPs        int      `json:"snps"`
	Monomorphic int      `json:"monomorphic"`
	Files       []string `json:"files"`
}

// GwasSummary is the summary of an association scan.
type GwasSummary struct {
	N         int    `json:"n"`
	Phenotype string `json:"phenotype"`
	*gwas.Summary
}
