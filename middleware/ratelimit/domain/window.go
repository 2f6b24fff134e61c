package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// WindowSpec é a configuração imutável de uma janela: no máximo Limit
// requisições a cada Window.
type WindowSpec struct {
	Limit  int
	Window time.Duration
}

// ConfigError indica uma configuração de janela inválida. É fatal na subida.
type ConfigError struct {
	Spec   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid rate limit %q: %s (expected COUNT:DURATION, e.g. 60:1m)", e.Spec, e.Reason)
}

// ParseWindowSpec interpreta "COUNT:DURATION". DURATION é um inteiro em
// segundos, opcionalmente com sufixo s, m ou h.
func ParseWindowSpec(s string) (WindowSpec, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return WindowSpec{}, &ConfigError{Spec: s, Reason: "malformed"}
	}

	count, err := strconv.Atoi(parts[0])
	if err != nil || count <= 0 {
		return WindowSpec{}, &ConfigError{Spec: s, Reason: "count must be a positive integer"}
	}

	window, err := parseWindow(parts[1])
	if err != nil {
		return WindowSpec{}, &ConfigError{Spec: s, Reason: err.Error()}
	}

	return WindowSpec{Limit: count, Window: window}, nil
}

func parseWindow(v string) (time.Duration, error) {
	unit := time.Second
	switch v[len(v)-1] {
	case 's':
		v = v[:len(v)-1]
	case 'm':
		unit = time.Minute
		v = v[:len(v)-1]
	case 'h':
		unit = time.Hour
		v = v[:len(v)-1]
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("duration must be a positive integer with optional s, m or h suffix")
	}
	if n > int64(math.MaxInt64/unit) {
		return 0, fmt.Errorf("duration overflows")
	}
	return time.Duration(n) * unit, nil
}

func (w WindowSpec) String() string {
	return strconv.Itoa(w.Limit) + ":" + w.Window.String()
}
