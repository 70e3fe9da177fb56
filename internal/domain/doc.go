// Package domain models raw disdrometer observations and the parameterized
// drop size distribution records derived from them.
//
// # Data Source
//
// Collectors poll disdrometers (OTT Parsivel, Joss-Waldvogel, 2D video) and
// publish one JSON document per station and accumulation window to the Kafka
// source topic. A document holds a contiguous run of equally spaced time
// steps for a single instrument.
//
// # Record Conventions
//
// Spectra:
//
//	"nd"      concentrations in m^-3 mm^-1, one row per step, one column per bin.
//	"counts"  raw drop counts per bin accumulated over interval_seconds.
//	          Converted with Nd = 1e6*C / (A*v*dD*dt); needs an instrument
//	          with a sampling area model (Parsivel).
//	null      marks a missing bin and is skipped by every moment sum.
//
// Geometry:
//
//	Built-in instruments ("parsivel", "jwd", "2dvd") carry their own bin
//	tables. Any other instrument must send "diameter", "spread" and
//	"bin_edges" in mm.
//
// Time:
//
//	"start_time" is RFC 3339 and marks step 0; step t is start_time +
//	t*interval_seconds. Records without start_time fall back to the Kafka
//	message timestamp.
//
// Scattering inputs:
//
//	Optional "scattered" arrays (Zh dBZ, Zdr dB, Kdp deg/km, Ai dB/km) come
//	from an external T-matrix run and feed the rainfall relationship fits.
//	An optional "vertical_velocity" series (m/s, one value per step) from a
//	co-located profiler enables the Atlas (2000) classification.
//
// # Output
//
// Every record becomes one [ParameterizedDSD] carrying the derived fields
// keyed by name (Nt, W, D0, Nw, Dmax, Dm, N0, mu, Lambda, rain_rate and the
// 2-4-6 moment gamma fit mu_ua98, Lambda_ua98, N0_ua98, D0_ua98), the mu fit
// status per step, and the relationship fits. Each step is classified by
// Bringi (2009) in rain_type and by Islam (2012) in rain_type_islam;
// rain_type_atlas is present only when vertical velocity was supplied.
// Missing values are encoded as JSON null.
//
// # ID Generation
//
// Record IDs are "<instrument>-" plus a truncated SHA-256 of
// station|instrument|start|steps, so replays upsert instead of duplicating.
// See [generateID].
package domain
