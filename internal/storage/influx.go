package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"can-telemetry-dashboard/internal/model"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxStore implements Store backed by InfluxDB v2, one point per change.
type InfluxStore struct {
	client influxdb2.Client
	org    string
	bucket string
	wapi   api.WriteAPIBlocking
	qapi   api.QueryAPI
}

const measurement = "dashboard_change"

// NewInfluxStore builds a Store using the InfluxDB v2 client.
func NewInfluxStore(url, org, bucket, token string) (Store, error) {
	if url == "" || org == "" || bucket == "" || token == "" {
		return nil, fmt.Errorf("influx: missing url/org/bucket/token")
	}
	client := influxdb2.NewClient(url, token)
	return &InfluxStore{
		client: client,
		org:    org,
		bucket: bucket,
		wapi:   client.WriteAPIBlocking(org, bucket),
		qapi:   client.QueryAPI(org),
	}, nil
}

func (s *InfluxStore) SaveSample(smp model.Sample) error {
	p := influxdb2.NewPoint(measurement,
		map[string]string{"field": string(smp.Field)},
		map[string]interface{}{"value": smp.Value},
		smp.Timestamp)
	return s.wapi.WritePoint(context.Background(), p)
}

func (s *InfluxStore) ListFields() ([]string, error) {
	q := `from(bucket: "` + s.bucket + `")
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == "` + measurement + `")
  |> keep(columns: ["field"])
  |> group()
  |> distinct(column: "field")`
	res, err := s.qapi.Query(context.Background(), q)
	if err != nil {
		return nil, fmt.Errorf("influx list fields: %w", err)
	}
	defer res.Close()
	set := map[string]struct{}{}
	for res.Next() {
		v := res.Record().Value()
		if v == nil {
			continue
		}
		f, ok := v.(string)
		if !ok || f == "" {
			continue
		}
		set[f] = struct{}{}
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("influx list fields: %w", res.Err())
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

// timeLiteral returns a Flux time literal suitable for range().
func timeLiteral(t time.Time) string {
	return fmt.Sprintf("time(v: %q)", t.UTC().Format(time.RFC3339))
}

func (s *InfluxStore) QuerySamples(field string, start, end *time.Time) ([]model.Sample, error) {
	if field == "" {
		return nil, fmt.Errorf("field required")
	}
	startExpr := "0"
	if start != nil {
		startExpr = timeLiteral(*start)
	}
	stopExpr := ""
	if end != nil {
		stopExpr = ", stop: " + timeLiteral(*end)
	}
	q := fmt.Sprintf(`from(bucket: "%s")
  |> range(start: %s%s)
  |> filter(fn: (r) => r._measurement == "%s" and r.field == "%s" and r._field == "value")
  |> sort(columns: ["_time"], desc: false)
`, s.bucket, startExpr, stopExpr, measurement, field)
	res, err := s.qapi.Query(context.Background(), q)
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()
	var out []model.Sample
	for res.Next() {
		rec := res.Record()
		v, ok := rec.Value().(float64)
		if !ok {
			continue
		}
		out = append(out, model.Sample{
			Field:     model.Field(field),
			Value:     v,
			Timestamp: rec.Time().UTC(),
		})
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	return out, nil
}
