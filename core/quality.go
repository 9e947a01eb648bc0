package core

// SignalQuality is a coarse serviceability bucket derived from radio
// measurements. The SINR boundaries follow the usual modcod steps; the RSRP
// boundaries are the NTN coverage bands.
type SignalQuality string

const (
	QualityDown      SignalQuality = "down"
	QualityPoor      SignalQuality = "poor"
	QualityFair      SignalQuality = "fair"
	QualityGood      SignalQuality = "good"
	QualityExcellent SignalQuality = "excellent"
)

func (q SignalQuality) rank() int {
	switch q {
	case QualityDown:
		return 0
	case QualityPoor:
		return 1
	case QualityFair:
		return 2
	case QualityGood:
		return 3
	case QualityExcellent:
		return 4
	default:
		return -1
	}
}

// AtOrBelow reports whether q is the same bucket as other or a worse one.
func (q SignalQuality) AtOrBelow(other SignalQuality) bool {
	return q.rank() <= other.rank()
}

func classifyBySINR(sinrDB float64) SignalQuality {
	switch {
	case sinrDB < 0:
		return QualityDown
	case sinrDB < 5:
		return QualityPoor
	case sinrDB < 10:
		return QualityFair
	case sinrDB < 20:
		return QualityGood
	default:
		return QualityExcellent
	}
}

func classifyByRSRP(rsrpDBm float64) SignalQuality {
	switch {
	case rsrpDBm < -120:
		return QualityDown
	case rsrpDBm < -110:
		return QualityPoor
	case rsrpDBm < -100:
		return QualityFair
	case rsrpDBm < -90:
		return QualityGood
	default:
		return QualityExcellent
	}
}

// ClassifySignal buckets a measurement pair, taking the worse of the RSRP
// and SINR verdicts. Callers substitute worst-case floors for missing
// measurements before classifying.
func ClassifySignal(rsrpDBm, sinrDB float64) SignalQuality {
	r := classifyByRSRP(rsrpDBm)
	s := classifyBySINR(sinrDB)
	if s.rank() < r.rank() {
		return s
	}
	return r
}
