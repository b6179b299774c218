package pagespeed

import (
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
)

// psiResponse represents the PageSpeed Insights API response envelope
type psiResponse struct {
	LighthouseResult  *lighthouseResult  `json:"lighthouseResult"`
	LoadingExperience *loadingExperience `json:"loadingExperience"`
}

// lighthouseResult represents the lab analysis section of a response
type lighthouseResult struct {
	FinalURL   string                 `json:"finalUrl"`
	FetchTime  string                 `json:"fetchTime"`
	Categories map[string]psiCategory `json:"categories"`
	Audits     map[string]psiAudit    `json:"audits"`
}

// psiCategory represents one Lighthouse category score (0-1, nullable)
type psiCategory struct {
	Score *float64 `json:"score"`
}

// psiAudit represents one Lighthouse audit result
type psiAudit struct {
	NumericValue *float64 `json:"numericValue"`
}

// loadingExperience represents field data collected from real visitors
type loadingExperience struct {
	Metrics map[string]psiFieldMetric `json:"metrics"`
}

// psiFieldMetric represents one field metric with its 75th percentile
type psiFieldMetric struct {
	Percentile *float64 `json:"percentile"`
}

// convert maps a parsed API response onto the domain metrics. A response
// without a performance score is malformed: retrying it would return the
// same payload, so the error is permanent.
func convert(siteURL string, resp *psiResponse) (*models.PerformanceMetrics, error) {
	if resp.LighthouseResult == nil {
		return nil, scanerr.Permanent(source, "response carries no lighthouse result", nil)
	}

	categories := resp.LighthouseResult.Categories
	performance, ok := categories["performance"]
	if !ok || performance.Score == nil {
		return nil, scanerr.Permanent(source, "response carries no performance score", nil)
	}

	finalURL := resp.LighthouseResult.FinalURL
	if finalURL == "" {
		finalURL = siteURL
	}

	metrics := &models.PerformanceMetrics{
		Score:         *performance.Score * 100,
		Accessibility: categoryScore(categories, "accessibility"),
		BestPractices: categoryScore(categories, "best-practices"),
		SEO:           categoryScore(categories, "seo"),
		FieldData:     fieldData(resp.LoadingExperience),
		LabData:       labData(resp.LighthouseResult.Audits),
		FinalURL:      finalURL,
		FetchedAt:     time.Now().UTC(),
	}

	return metrics, nil
}

// categoryScore scales a 0-1 category score to 0-100, nil when absent.
func categoryScore(categories map[string]psiCategory, name string) *float64 {
	category, ok := categories[name]
	if !ok || category.Score == nil {
		return nil
	}
	scaled := *category.Score * 100
	return &scaled
}

// fieldData extracts Core Web Vitals from the loading experience section.
// Sites without enough real-visitor traffic carry no field data at all.
func fieldData(exp *loadingExperience) *models.CoreWebVitals {
	if exp == nil || len(exp.Metrics) == 0 {
		return nil
	}

	vitals := &models.CoreWebVitals{
		FirstContentfulPaintMs:   percentile(exp.Metrics, "FIRST_CONTENTFUL_PAINT_MS"),
		LargestContentfulPaintMs: percentile(exp.Metrics, "LARGEST_CONTENTFUL_PAINT_MS"),
		InteractionToNextPaintMs: percentile(exp.Metrics, "INTERACTION_TO_NEXT_PAINT"),
		TimeToFirstByteMs:        percentile(exp.Metrics, "EXPERIMENTAL_TIME_TO_FIRST_BYTE"),
	}

	// The API reports the CLS percentile multiplied by 100.
	if cls := percentile(exp.Metrics, "CUMULATIVE_LAYOUT_SHIFT_SCORE"); cls != nil {
		scaled := *cls / 100
		vitals.CumulativeLayoutShift = &scaled
	}

	return vitals
}

// percentile reads one field metric's 75th percentile value.
func percentile(metrics map[string]psiFieldMetric, key string) *float64 {
	metric, ok := metrics[key]
	if !ok || metric.Percentile == nil {
		return nil
	}
	value := *metric.Percentile
	return &value
}

// labData extracts the simulated-load metrics from the audit map.
func labData(audits map[string]psiAudit) *models.LabMetrics {
	if len(audits) == 0 {
		return nil
	}

	lab := &models.LabMetrics{
		FirstContentfulPaintMs:   auditValue(audits, "first-contentful-paint"),
		LargestContentfulPaintMs: auditValue(audits, "largest-contentful-paint"),
		TotalBlockingTimeMs:      auditValue(audits, "total-blocking-time"),
		CumulativeLayoutShift:    auditValue(audits, "cumulative-layout-shift"),
		SpeedIndexMs:             auditValue(audits, "speed-index"),
		TimeToInteractiveMs:      auditValue(audits, "interactive"),
		TotalByteWeight:          int64(auditValue(audits, "total-byte-weight")),
	}

	return lab
}

// auditValue reads one audit's numeric value, zero when absent.
func auditValue(audits map[string]psiAudit, name string) float64 {
	audit, ok := audits[name]
	if !ok || audit.NumericValue == nil {
		return 0
	}
	return *audit.NumericValue
}
