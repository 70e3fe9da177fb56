// Package dsd computes microphysical parameters from drop size distribution
// time series.
//
// A DropSizeDistribution holds per-time-step drop concentrations Nd[t][i]
// binned by diameter. The package derives the moments of each histogram,
// the median volume diameter D0, the normalized intercept Nw, the gamma
// shape parameter mu, exponential slope and intercept, rain rate and
// rainfall relationship fits.
//
// Steps with an all-zero histogram are degenerate, not errors: count and
// mass fields are left at 0 while shape and intercept fields are NaN.
// Missing or masked Nd entries (NaN, Inf) are skipped by every sum.
package dsd
