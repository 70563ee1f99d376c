package events

import (
	"time"

	"BrentShift/internal/domain/models"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

var catalog = []models.EventRecord{
	{Date: day(1990, time.August, 2), Title: "Iraq invades Kuwait", Category: "conflict"},
	{Date: day(1991, time.January, 17), Title: "Gulf War begins", Category: "conflict"},
	{Date: day(2001, time.September, 11), Title: "9/11 attacks", Category: "terrorism"},
	{Date: day(2003, time.March, 20), Title: "Iraq War begins", Category: "conflict"},
	{Date: day(2008, time.September, 15), Title: "Lehman Brothers bankruptcy", Category: "financial"},
	{Date: day(2011, time.February, 15), Title: "Libyan civil war begins", Category: "conflict"},
	{Date: day(2014, time.June, 13), Title: "ISIS captures Mosul", Category: "conflict"},
	{Date: day(2016, time.November, 30), Title: "OPEC production cut agreement", Category: "policy"},
	{Date: day(2020, time.March, 11), Title: "COVID-19 declared pandemic", Category: "health"},
	{Date: day(2020, time.April, 20), Title: "WTI crude goes negative", Category: "financial"},
	{Date: day(2022, time.February, 24), Title: "Russia invades Ukraine", Category: "conflict"},
	{Date: day(2022, time.October, 5), Title: "OPEC+ production cut", Category: "policy"},
}

// Catalog returns a copy of the built-in geopolitical and economic event list, ordered by date.
func Catalog() []models.EventRecord {
	out := make([]models.EventRecord, len(catalog))
	copy(out, catalog)
	return out
}
