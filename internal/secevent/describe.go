// Package secevent turns Windows Security event data into one-line
// descriptions and a few normalized fields.
package secevent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Well-known logon events.
const (
	EventLogonSuccess = 4624
	EventLogonFailure = 4625
)

// Normalized holds the fields extracted from an event's data.
type Normalized struct {
	Actor         string
	Domain        string
	SourceIP      string
	LogonType     string
	Workstation   string
	AuthPackage   string
	Process       string
	Status        string
	FailureReason string
}

// UserDisplay renders the actor as DOMAIN\user when both are known.
func (n Normalized) UserDisplay() string {
	if n.Domain != "" && n.Actor != "" {
		return n.Domain + `\` + n.Actor
	}
	return n.Actor
}

var ipKeys = []string{"IpAddress", "Ip", "SourceIp", "SourceIPAddress", "SourceNetworkAddress", "ClientAddress", "RemoteHost"}

// Data is one event's flattened key/value data.
type Data map[string]string

func (d Data) pick(keys ...string) string {
	for _, k := range keys {
		switch v := strings.TrimSpace(d[k]); v {
		case "", "NULL", "-":
		default:
			return v
		}
	}
	return ""
}

func (d Data) ip() string { return d.pick(ipKeys...) }

// Describe returns the description and normalized fields of one event.
// message is the parser's own message column, used for events without a
// dedicated describer.
func Describe(eventID int, message string, data Data) (string, Normalized) {
	d := withPayload(data)
	switch eventID {
	case EventLogonSuccess:
		return describeLogon(d, true)
	case EventLogonFailure:
		return describeLogon(d, false)
	}
	return describeGeneric(message, d)
}

func describeLogon(d Data, success bool) (string, Normalized) {
	n := Normalized{
		LogonType:   d.pick("LogonType", "Logon_Type"),
		Actor:       d.pick("TargetUserName", "UserName", "AccountName", "SubjectUserName"),
		Domain:      d.pick("TargetDomainName", "DomainName", "SubjectDomainName"),
		SourceIP:    d.ip(),
		Workstation: d.pick("WorkstationName", "Workstation"),
	}

	user := n.UserDisplay()
	if user == "" {
		user = "(unknown)"
	}
	from := firstNonEmpty(n.SourceIP, n.Workstation, "-")
	lt := firstNonEmpty(n.LogonType, "?")

	var b strings.Builder
	if success {
		n.Status = "Success"
		n.AuthPackage = d.pick("AuthenticationPackageName", "PackageName")
		n.Process = d.pick("ProcessName", "NewProcessName", "Image")
		fmt.Fprintf(&b, "Logon success (%d) type=%s user=%s from=%s", EventLogonSuccess, lt, user, from)
		if n.AuthPackage != "" {
			b.WriteString(" pkg=" + n.AuthPackage)
		}
		if n.Process != "" {
			b.WriteString(" proc=" + n.Process)
		}
		return b.String(), n
	}

	n.Status = "Failure"
	n.FailureReason = d.pick("FailureReason", "Status", "SubStatus", "ErrorCode")
	fmt.Fprintf(&b, "Logon failure (%d) type=%s user=%s from=%s", EventLogonFailure, lt, user, from)
	if n.FailureReason != "" {
		b.WriteString(" reason=" + n.FailureReason)
	}
	return b.String(), n
}

func describeGeneric(message string, d Data) (string, Normalized) {
	n := Normalized{
		Actor:    d.pick("UserName", "TargetUserName", "SubjectUserName", "AccountName"),
		Domain:   d.pick("TargetDomainName", "SubjectDomainName", "DomainName"),
		SourceIP: d.ip(),
	}
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = d.pick("MapDescription")
	}
	if msg == "" {
		var parts []string
		for _, k := range []string{"Provider", "Channel", "Level"} {
			if v := d.pick(k); v != "" {
				parts = append(parts, v)
			}
		}
		msg = strings.Join(parts, " ")
	}
	if msg == "" {
		msg = "(no message)"
	}
	return msg, n
}

// withPayload merges the EventData of a JSON Payload column into a copy of
// d without overwriting existing keys. Both the flat object form and the
// {"Data":[{"@Name":k,"#text":v}]} form are understood.
func withPayload(d Data) Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	raw := strings.TrimSpace(d["Payload"])
	if !strings.HasPrefix(raw, "{") {
		return out
	}

	var p struct {
		EventData json.RawMessage `json:"EventData"`
	}
	if json.Unmarshal([]byte(raw), &p) != nil || len(p.EventData) == 0 {
		return out
	}

	setDefault := func(k string, v any) {
		if _, ok := out[k]; !ok && k != "" {
			out[k] = stringify(v)
		}
	}

	var asString string
	if json.Unmarshal(p.EventData, &asString) == nil {
		setDefault("EventDataString", asString)
		return out
	}

	var obj map[string]any
	if json.Unmarshal(p.EventData, &obj) != nil {
		return out
	}
	if items, ok := obj["Data"].([]any); ok {
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["@Name"].(string)
			setDefault(name, m["#text"])
		}
		return out
	}
	for k, v := range obj {
		setDefault(k, v)
	}
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
