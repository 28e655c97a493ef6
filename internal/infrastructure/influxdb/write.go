package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteChannelStatus records one decoded status field for a channel.
//
// Tags carry the channel identity (zone id and numeric channel type);
// the field name is the status key from the decoded report, e.g.
// "closeopen", "temperature" or "onoff". Writes are batched and
// non-blocking; when the client is disconnected the point is dropped.
func (c *Client) WriteChannelStatus(zoneID string, channelType int, field string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"channel_status",
		map[string]string{
			"zone_id": zoneID,
			"type":    strconv.Itoa(channelType),
		},
		map[string]interface{}{
			field: value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkQuality records the radio link metrics reported alongside an
// attribute report: signal strength (0-100, derived from LQI) and the
// battery percentage when the device reports one (-1 when absent).
func (c *Client) WriteLinkQuality(zoneID string, signal int, battery int) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"signal": signal,
	}
	if battery >= 0 {
		fields["battery"] = battery
	}

	point := write.NewPoint(
		"link_quality",
		map[string]string{
			"zone_id": zoneID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point for measurements that do not fit the
// channel helpers.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
