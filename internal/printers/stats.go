package printers

import "math"

// computeStats: 平均レイテンシは失敗ジョブも含めた全件で割る（記録なしは 0 ms 扱い）
func computeStats(printerID string, results []PrintJobResult) PrinterStats {
	st := PrinterStats{PrinterID: printerID}
	if len(results) == 0 {
		return st
	}

	var latencySum int64
	for i := range results {
		r := &results[i]
		st.TotalJobs++
		if r.Status == JobSuccess {
			st.SuccessfulJobs++
		} else {
			st.FailedJobs++
		}
		if r.LatencyMS != nil {
			latencySum += *r.LatencyMS
		}
		if st.LastJobAt == nil || r.PrintedAt.After(*st.LastJobAt) {
			t := r.PrintedAt
			st.LastJobAt = &t
		}
	}
	st.AverageLatencyMS = round2(float64(latencySum) / float64(st.TotalJobs))
	st.Uptime = round2(float64(st.SuccessfulJobs) / float64(st.TotalJobs) * 100)
	return st
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
