package mixture

import "math"

// regularization returns (n/nTotal)·λ·Σ_k Σ_d 1/Σ_k[d,d], a penalty that
// grows as any component's variance collapses. Σ_k[d,d] = Σ_{j≤d} L_k[d,j]².
func regularization(p *Params, n, nTotal int, lambda float64) float64 {
	if lambda == 0 {
		return 0
	}
	scale := float64(n) / float64(nTotal) * lambda
	total := 0.0
	for k := 0; k < p.K; k++ {
		for d := 0; d < p.D; d++ {
			total += 1 / diagVariance(p, k, d)
		}
	}
	return scale * total
}

// diagVariance is Σ_k[d,d].
func diagVariance(p *Params, k, d int) float64 {
	ld := math.Exp(p.logDiag(k)[d])
	v := ld * ld
	low := p.lower(k)
	for j := 0; j < d; j++ {
		l := low[trilIndex(d, j)]
		v += l * l
	}
	return v
}

// addRegularizationGrad accumulates the gradient of regularization into
// grad. Only LogDiag and LowerOffDiag receive contributions.
func addRegularizationGrad(p *Params, n, nTotal int, lambda float64, grad *Params) {
	if lambda == 0 {
		return
	}
	scale := float64(n) / float64(nTotal) * lambda
	for k := 0; k < p.K; k++ {
		s := p.logDiag(k)
		low := p.lower(k)
		gs := grad.logDiag(k)
		glow := grad.lower(k)
		for d := 0; d < p.D; d++ {
			v := diagVariance(p, k, d)
			c := -2 * scale / (v * v)
			ld := math.Exp(s[d])
			gs[d] += c * ld * ld
			for j := 0; j < d; j++ {
				idx := trilIndex(d, j)
				glow[idx] += c * low[idx]
			}
		}
	}
}
