package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/pkg/echarge"
)

const STATION_TITLE_PREFIX = "eCB1"

// StationSession performs the device calls of one coordinator operation.
// Every call is bounded by RequestTimeout. It is not safe for concurrent use.
type StationSession struct {
	Client         echarge.Client
	Station        int
	BaseURL        string
	RequestTimeout time.Duration
	Config         domain.MergeConfig
}

func (s StationSession) call(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.RequestTimeout)
	defer cancel()
	return fn(ctx)
}

// Authenticate logs in and returns a classified error.
func (s StationSession) Authenticate() error {
	return domain.Classify(s.call(s.Client.Authenticate))
}

// ReadAll issues the five reads of a refresh cycle in order and stops at the first failure.
func (s StationSession) ReadAll() (*RawReads, error) {
	var reads RawReads
	steps := []struct {
		call string
		read func(ctx context.Context) (*echarge.Document, error)
		into **echarge.Document
	}{
		{echarge.CALL_READ_STATUS, func(ctx context.Context) (*echarge.Document, error) {
			return s.Client.ReadStatus(ctx, s.Station)
		}, &reads.Status},
		{echarge.CALL_READ_SYSTEM_INFO, s.Client.ReadSystemInfo, &reads.SystemInfo},
		{echarge.CALL_READ_CHARGING_MODES, s.Client.ReadChargingModes, &reads.ChargingModes},
		{echarge.CALL_READ_AUTO_MODE, func(ctx context.Context) (*echarge.Document, error) {
			return s.Client.ReadAutoMode(ctx, s.Station)
		}, &reads.AutoMode},
		{echarge.CALL_READ_METERS, func(ctx context.Context) (*echarge.Document, error) {
			return s.Client.ReadMeters(ctx, s.Station)
		}, &reads.Meters},
	}
	for _, step := range steps {
		err := s.call(func(ctx context.Context) error {
			doc, err := step.read(ctx)
			*step.into = doc
			return err
		})
		if err != nil {
			return nil, &domain.PartialRefreshError{Read: step.call, Err: domain.Classify(err)}
		}
	}
	return &reads, nil
}

// Write sends the device write for cmd.
func (s StationSession) Write(cmd domain.CommandRequest) error {
	err := s.call(func(ctx context.Context) error {
		switch c := cmd.(type) {
		case domain.SetChargingCurrentRequest:
			return s.Client.WriteMaxCurrent(ctx, s.Station, c.Value)
		case domain.SetLockStateRequest:
			return s.Client.WriteLock(ctx, s.Station, c.Locked)
		case domain.SetChargingModeRequest:
			return s.Client.WriteMode(ctx, s.Station, c.Mode)
		case domain.SetAutoModeRequest:
			return s.Client.WriteAutoMode(ctx, s.Station, c.On)
		}
		return fmt.Errorf("%w: unsupported command %T", domain.ErrInvalidCommand, cmd)
	})
	if err == nil || errors.Is(err, domain.ErrInvalidCommand) {
		return err
	}
	return domain.Classify(err)
}

// Title reads the meter name once.
func (s StationSession) Title() (domain.StationTitle, error) {
	var meters *echarge.Document
	err := s.call(func(ctx context.Context) (err error) {
		meters, err = s.Client.ReadMeters(ctx, s.Station)
		return err
	})
	if err != nil {
		return domain.StationTitle{}, domain.Classify(err)
	}

	title := DefaultStationTitle(s.BaseURL, s.Station)
	if meter, ok := meters.Doc(s.Config.MeterKey); ok {
		if name, ok := meter.Get(domain.KEY_METER_NAME); ok {
			if text, ok := name.(string); ok && text != "" {
				title.Title = fmt.Sprintf("%s %s", STATION_TITLE_PREFIX, text)
			}
		}
	}
	return title, nil
}

// DefaultStationTitle is the title used when the station has no meter name.
func DefaultStationTitle(baseURL string, station int) domain.StationTitle {
	return domain.StationTitle{
		Title:    fmt.Sprintf("%s station %d", STATION_TITLE_PREFIX, station),
		UniqueId: baseURL + strconv.Itoa(station),
	}
}
