package hmm

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/seqlearn/seqlearn/pkg/errors"
)

// Emission は1状態分の観測分布
// 学習コアはこの2メソッドのみを通して分布とやり取りする
type Emission interface {
	// Fit は重み付きサンプルに対して最尤推定でパラメータを再推定する
	// 空のサンプルや重みの合計が 0 の場合は何もせず nil を返す
	Fit(samples [][]float64, weights []float64) error

	// LogProb は観測の対数確率（密度）を返す
	// 戻り値は有限値または -Inf であり、NaN は返さない
	LogProb(obs []float64) float64
}

// EmissionFactory は状態ごとの観測分布を生成する
// リフレクションの代わりに明示的なファクトリ関数を渡す
type EmissionFactory func(state int) Emission

// Sampler は観測を生成できる分布
// Model.Sample が使用する
type Sampler interface {
	Sample(rng *rand.Rand) []float64
}

// ---------------------------------------------------------------------------
// 離散分布
// ---------------------------------------------------------------------------

// DiscreteEmission は有限アルファベット上のカテゴリカル分布
// 観測は記号インデックスを先頭要素に持つ1要素ベクトル
type DiscreteEmission struct {
	logProbs    []float64
	pseudocount float64
}

// NewDiscreteEmission は一様分布で初期化した離散分布を作成する
func NewDiscreteEmission(symbols int) *DiscreteEmission {
	logProbs := make([]float64, symbols)
	logUniform := -math.Log(float64(symbols))
	for i := range logProbs {
		logProbs[i] = logUniform
	}
	return &DiscreteEmission{logProbs: logProbs}
}

// NewDiscreteEmissionFromProbs は確率ベクトルから離散分布を作成する
func NewDiscreteEmissionFromProbs(probs []float64) *DiscreteEmission {
	logProbs := make([]float64, len(probs))
	for i, p := range probs {
		logProbs[i] = math.Log(p)
	}
	return &DiscreteEmission{logProbs: logProbs}
}

// WithPseudocount は再推定時の加算スムージング量を設定する
// ゼロ頻度の記号が -Inf に潰れるのを防ぐ
func (d *DiscreteEmission) WithPseudocount(c float64) *DiscreteEmission {
	d.pseudocount = c
	return d
}

// Symbols はアルファベットサイズを返す
func (d *DiscreteEmission) Symbols() int { return len(d.logProbs) }

// Fit は重み付き頻度からカテゴリカル分布を再推定する
func (d *DiscreteEmission) Fit(samples [][]float64, weights []float64) error {
	if len(samples) != len(weights) {
		return errors.NewDimensionError("DiscreteEmission.Fit", len(samples), len(weights))
	}
	if len(samples) == 0 {
		return nil
	}

	n := len(d.logProbs)
	counts := make([]float64, n)
	total := 0.0
	for i, s := range samples {
		if len(s) == 0 {
			return errors.NewValidationError("samples", "empty observation vector", i)
		}
		sym := int(s[0])
		if sym < 0 || sym >= n {
			return errors.NewValidationError("samples", "symbol out of range", sym)
		}
		w := errors.ClampWeight(weights[i])
		counts[sym] += w
		total += w
	}

	// 重みがすべてゼロの場合は縮退ケースとして現状を維持する
	if total == 0 {
		return nil
	}

	denom := total + d.pseudocount*float64(n)
	for s := 0; s < n; s++ {
		d.logProbs[s] = math.Log((counts[s] + d.pseudocount) / denom)
	}
	return nil
}

// LogProb は記号の対数確率を返す
// 範囲外の記号は確率ゼロとして -Inf を返す
func (d *DiscreteEmission) LogProb(obs []float64) float64 {
	if len(obs) == 0 {
		return math.Inf(-1)
	}
	sym := int(obs[0])
	if sym < 0 || sym >= len(d.logProbs) {
		return math.Inf(-1)
	}
	return d.logProbs[sym]
}

// Sample は分布から記号を1つ生成する
func (d *DiscreteEmission) Sample(rng *rand.Rand) []float64 {
	target := rng.Float64()
	cum := 0.0
	for s, lp := range d.logProbs {
		cum += math.Exp(lp)
		if target < cum {
			return []float64{float64(s)}
		}
	}
	return []float64{float64(len(d.logProbs) - 1)}
}

// ---------------------------------------------------------------------------
// ガウス分布
// ---------------------------------------------------------------------------

// minStdDev は分散が潰れるのを防ぐ下限値
const minStdDev = 1e-6

// GaussianEmission は対角共分散の多次元正規分布
type GaussianEmission struct {
	dists []distuv.Normal
}

// NewGaussianEmission は平均と標準偏差から正規分布を作成する
func NewGaussianEmission(means, stddevs []float64) *GaussianEmission {
	dists := make([]distuv.Normal, len(means))
	for i := range means {
		sd := stddevs[i]
		if sd < minStdDev {
			sd = minStdDev
		}
		dists[i] = distuv.Normal{Mu: means[i], Sigma: sd}
	}
	return &GaussianEmission{dists: dists}
}

// Dims は観測ベクトルの次元数を返す
func (g *GaussianEmission) Dims() int { return len(g.dists) }

// Mean は指定次元の平均を返す
func (g *GaussianEmission) Mean(dim int) float64 { return g.dists[dim].Mu }

// StdDev は指定次元の標準偏差を返す
func (g *GaussianEmission) StdDev(dim int) float64 { return g.dists[dim].Sigma }

// Fit は重み付き最尤推定で平均と分散を再推定する
func (g *GaussianEmission) Fit(samples [][]float64, weights []float64) error {
	if len(samples) != len(weights) {
		return errors.NewDimensionError("GaussianEmission.Fit", len(samples), len(weights))
	}
	if len(samples) == 0 {
		return nil
	}

	clamped := make([]float64, len(weights))
	total := 0.0
	for i, w := range weights {
		clamped[i] = errors.ClampWeight(w)
		total += clamped[i]
	}
	if total == 0 {
		return nil
	}

	dims := len(g.dists)
	col := make([]float64, len(samples))
	for d := 0; d < dims; d++ {
		for i, s := range samples {
			if len(s) != dims {
				return errors.NewDimensionError("GaussianEmission.Fit", dims, len(s))
			}
			col[i] = s[d]
		}
		mean, sd := stat.MeanStdDev(col, clamped)
		if math.IsNaN(sd) || sd < minStdDev {
			sd = minStdDev
		}
		g.dists[d].Mu = mean
		g.dists[d].Sigma = sd
	}
	return nil
}

// LogProb は観測の対数密度を返す（次元ごとの対数密度の和）
func (g *GaussianEmission) LogProb(obs []float64) float64 {
	if len(obs) != len(g.dists) {
		return math.Inf(-1)
	}
	sum := 0.0
	for d, dist := range g.dists {
		sum += dist.LogProb(obs[d])
	}
	return sum
}

// Sample は分布から観測ベクトルを1つ生成する
func (g *GaussianEmission) Sample(rng *rand.Rand) []float64 {
	obs := make([]float64, len(g.dists))
	for d, dist := range g.dists {
		obs[d] = dist.Mu + dist.Sigma*rng.NormFloat64()
	}
	return obs
}

// DiscreteSequence は記号列を観測シーケンスへ変換するヘルパー
func DiscreteSequence(symbols []int) [][]float64 {
	seq := make([][]float64, len(symbols))
	for i, s := range symbols {
		seq[i] = []float64{float64(s)}
	}
	return seq
}
