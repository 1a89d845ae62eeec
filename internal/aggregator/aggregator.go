package aggregator

import (
	"sort"
	"time"

	"harvest/internal/models"
)

type groupKey struct {
	entity string
	day    time.Time
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// acc accumulates the present values of one metric.
type acc struct {
	n        int
	sum      float64
	min, max float64
	last     *float64
	lastAt   time.Time
}

func (a *acc) add(v *float64, at time.Time) {
	if v == nil {
		return
	}
	if a.n == 0 || *v < a.min {
		a.min = *v
	}
	if a.n == 0 || *v > a.max {
		a.max = *v
	}
	a.n++
	a.sum += *v
	if a.last == nil || !at.Before(a.lastAt) {
		x := *v
		a.last, a.lastAt = &x, at
	}
}

func (a *acc) mean() *float64 {
	if a.n == 0 {
		return nil
	}
	return models.Float(a.sum / float64(a.n))
}

func (a *acc) total() *float64 {
	if a.n == 0 {
		return nil
	}
	return models.Float(a.sum)
}

func (a *acc) minimum() *float64 {
	if a.n == 0 {
		return nil
	}
	return models.Float(a.min)
}

func (a *acc) maximum() *float64 {
	if a.n == 0 {
		return nil
	}
	return models.Float(a.max)
}

func sortedKeys[V any](groups map[groupKey]V) []groupKey {
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entity != keys[j].entity {
			return keys[i].entity < keys[j].entity
		}
		return keys[i].day.Before(keys[j].day)
	})
	return keys
}

// DailyPrices groups products by (url, UTC day). NObs counts every
// observation in the group; price statistics use present prices only and
// are absent when the day has none.
func DailyPrices(products []models.Product) []models.DailyPrice {
	type group struct {
		price acc
		n     int
	}
	groups := make(map[groupKey]*group)
	for _, p := range products {
		k := groupKey{p.URL, Day(p.ScrapedAt)}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
		}
		g.n++
		g.price.add(p.Price, p.ScrapedAt)
	}

	out := make([]models.DailyPrice, 0, len(groups))
	for _, k := range sortedKeys(groups) {
		g := groups[k]
		out = append(out, models.DailyPrice{
			URL:       k.entity,
			Day:       k.day,
			MinPrice:  g.price.minimum(),
			AvgPrice:  g.price.mean(),
			MaxPrice:  g.price.maximum(),
			LastPrice: g.price.last,
			NObs:      g.n,
		})
	}
	return out
}

// DailyWeather groups readings by (city, UTC day): mean temperature,
// humidity and wind, summed precipitation.
func DailyWeather(readings []models.Weather) []models.DailyWeather {
	type group struct {
		temp, humidity, precip, wind acc
		n                            int
	}
	groups := make(map[groupKey]*group)
	for _, w := range readings {
		k := groupKey{w.City, Day(w.Time)}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
		}
		g.n++
		g.temp.add(w.Temperature, w.Time)
		g.humidity.add(w.Humidity, w.Time)
		g.precip.add(w.Precipitation, w.Time)
		g.wind.add(w.WindSpeed, w.Time)
	}

	out := make([]models.DailyWeather, 0, len(groups))
	for _, k := range sortedKeys(groups) {
		g := groups[k]
		out = append(out, models.DailyWeather{
			City:        k.entity,
			Day:         k.day,
			AvgTemp:     g.temp.mean(),
			AvgHumidity: g.humidity.mean(),
			TotalPrecip: g.precip.total(),
			AvgWind:     g.wind.mean(),
			NObs:        g.n,
		})
	}
	return out
}
