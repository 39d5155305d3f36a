package vecsum

// Sum returns the sum of buf using eight independent two-lane accumulators,
// sixteen elements per iteration, combined pairwise at the end.
//
// len(buf) must be a multiple of Unroll; trailing elements past the last full
// iteration are not visited. Chunk geometry is validated at startup so the
// loop carries no remainder handling.
func Sum(buf []float64) float64 {
	var (
		a0, b0 float64
		a1, b1 float64
		a2, b2 float64
		a3, b3 float64
		a4, b4 float64
		a5, b5 float64
		a6, b6 float64
		a7, b7 float64
	)
	for i := 0; i+Unroll <= len(buf); i += Unroll {
		x := buf[i : i+Unroll : i+Unroll]
		a0 += x[0]
		b0 += x[1]
		a1 += x[2]
		b1 += x[3]
		a2 += x[4]
		b2 += x[5]
		a3 += x[6]
		b3 += x[7]
		a4 += x[8]
		b4 += x[9]
		a5 += x[10]
		b5 += x[11]
		a6 += x[12]
		b6 += x[13]
		a7 += x[14]
		b7 += x[15]
	}

	// Tree combine, lane by lane.
	a01, b01 := a0+a1, b0+b1
	a23, b23 := a2+a3, b2+b3
	a45, b45 := a4+a5, b4+b5
	a67, b67 := a6+a7, b6+b7
	a03, b03 := a01+a23, b01+b23
	a47, b47 := a45+a67, b45+b67
	lo, hi := a03+a47, b03+b47
	return hi + lo
}

// SumSimple is the sequential reference reduction.
func SumSimple(buf []float64) float64 {
	var sum float64
	for _, v := range buf {
		sum += v
	}
	return sum
}
