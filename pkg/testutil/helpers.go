// Package testutil provides common fixtures for testing.
package testutil

import (
	"github.com/tovarich86/calculadora-cidada/pkg/period"
	"github.com/tovarich86/calculadora-cidada/pkg/series"
)

// ReferenceRows returns provider rows for December 2022 to March 2023, preceded by a
// header row the way SIDRA sends it. Correcting 1000 from 2023-01 to 2023-03 yields
// 1023.10.
func ReferenceRows() []series.RawPoint {
	return []series.RawPoint{
		{Code: "Mês (Código)", Value: "Valor"},
		{Code: "202212", Value: "100.00"},
		{Code: "202301", Value: "101.06"},
		{Code: "202302", Value: "101.90"},
		{Code: "202303", Value: "102.31"},
	}
}

// FindPoint finds the point of the given month in points.
// Returns a pointer to the point if found, nil otherwise.
func FindPoint(points []series.IndexPoint, p period.Period) *series.IndexPoint {
	for i := range points {
		if points[i].Period.Equal(p) {
			return &points[i]
		}
	}
	return nil
}
