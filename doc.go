/*
Package csx implements Compressed Sparse eXtended (CSX), a sparse
matrix-vector multiplication (SpMV) acceleration format.

CSX scans a sparse matrix, already materialised in CSR form, for regular
substructures - constant-stride runs along rows, columns, diagonals,
anti-diagonals and small dense blocks - and rewrites each discovered run as a
single pattern instantiation. The result is a per-partition, bit-packed
control stream (ctl) plus a dense value stream that a generated SpMV kernel
walks in lock-step. Compared to plain CSR this trades one-time preprocessing
for a smaller memory footprint and higher throughput.

A typical caller builds a CSRInput from their own ingress (Matrix-Market
parsing and RCM reordering are outside this package's scope), tunes it into a
TunedMatrix, and then calls SpMV repeatedly:

	in, err := csx.NewCSRInput(nrows, ncols, rowptr, colind, values)
	if err != nil {
		...
	}
	ctx := csx.NewContext(csx.DefaultConfig())
	tuned, err := ctx.Tune(in, nil)
	if err != nil {
		...
	}
	err = tuned.SpMV(alpha, x, beta, y)

The package is organised after the six stages of spec.md §2: partitioning
(internal/partition), the IR workspace (internal/ir), the statistics engine
(internal/stats), encoding selection and rewriting (internal/encode), CSX
control-stream emission (internal/build), code generation (internal/codegen)
and execution (internal/exec).
*/
package csx
