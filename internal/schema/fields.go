package schema

// Field is a canonical column name shared by every feed source.
type Field string

const (
	FieldDate Field = "date"

	// Dimensions.
	FieldPackage    Field = "package"
	FieldCampaignID Field = "campaign_id"
	FieldAdvertiser Field = "advertiser"
	FieldChannel    Field = "channel"
	FieldAdFormat   Field = "ad_format"
	FieldProduct    Field = "product"

	// Volume metrics, summed across a window.
	FieldGrossRevenue          Field = "gross_revenue"
	FieldRevenueCost           Field = "revenue_cost"
	FieldPublisherImpressions  Field = "publisher_impressions"
	FieldAdvertiserImpressions Field = "advertiser_impressions"
	FieldRequests              Field = "requests"

	// Rate metrics, averaged across a window.
	FieldIVTRate  Field = "ivt_rate"
	FieldMargin   Field = "margin"
	FieldRPM      Field = "rpm"
	FieldFillRate Field = "fill_rate"
	FieldCPM      Field = "cpm"
	FieldScore    Field = "score"
)

// Kind describes how a field behaves under aggregation.
type Kind int

const (
	KindDate Kind = iota
	KindDimension
	KindVolume
	KindRate
)

func (k Kind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindDimension:
		return "dimension"
	case KindVolume:
		return "volume"
	case KindRate:
		return "rate"
	default:
		return "unknown"
	}
}

var fieldKinds = map[Field]Kind{
	FieldDate:                  KindDate,
	FieldPackage:               KindDimension,
	FieldCampaignID:            KindDimension,
	FieldAdvertiser:            KindDimension,
	FieldChannel:               KindDimension,
	FieldAdFormat:              KindDimension,
	FieldProduct:               KindDimension,
	FieldGrossRevenue:          KindVolume,
	FieldRevenueCost:           KindVolume,
	FieldPublisherImpressions:  KindVolume,
	FieldAdvertiserImpressions: KindVolume,
	FieldRequests:              KindVolume,
	FieldIVTRate:               KindRate,
	FieldMargin:                KindRate,
	FieldRPM:                   KindRate,
	FieldFillRate:              KindRate,
	FieldCPM:                   KindRate,
	FieldScore:                 KindRate,
}

// KindOf reports the aggregation kind of f. Unknown fields are treated as dimensions.
func KindOf(f Field) Kind {
	if k, ok := fieldKinds[f]; ok {
		return k
	}
	return KindDimension
}

// IsMetric reports whether f carries a numeric measure.
func IsMetric(f Field) bool {
	k := KindOf(f)
	return k == KindVolume || k == KindRate
}

// MetricFields lists every canonical metric in a stable order.
func MetricFields() []Field {
	return []Field{
		FieldGrossRevenue,
		FieldRevenueCost,
		FieldPublisherImpressions,
		FieldAdvertiserImpressions,
		FieldRequests,
		FieldIVTRate,
		FieldMargin,
		FieldRPM,
		FieldFillRate,
		FieldCPM,
		FieldScore,
	}
}
