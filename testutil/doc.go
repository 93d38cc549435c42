// Package testutil provides testing utilities for vecfetch.
//
// This package is intended for use in tests and benchmarks only.
// It provides deterministic payload generators shaped like the datasets
// vecfetch serves, and an instrumented in-memory transport for observing
// and breaking remote fetches.
//
// # Payloads
//
//	rng := testutil.NewRNG(seed)
//	data := rng.Bytes(3 << 20)               // opaque bytes
//	base := testutil.FvecPayload(seed, 1000, 128) // .fvec records
//
// # Transports
//
//	tr := testutil.NewCountingTransport(data)
//	tr.FailNext(2, errors.New("boom"))
//	tr.Tamper(func(off int64, b []byte) { b[0] ^= 1 })
//	...
//	fmt.Println(tr.Calls(), tr.BytesServed())
package testutil
