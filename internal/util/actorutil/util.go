package actorutil

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/events"
	"github.com/berfenger/echarge2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel, zap.DPanicLevel, zap.PanicLevel, zap.FatalLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
			NoColor:    true,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand resolves an MQTT command against the entity table.
// It returns nil, nil for entities that take no commands.
func ParsedMQTTCommandToCommand(table events.EntityTable, cmd mqtt.ParsedMQTTCommand) (domain.CommandRequest, error) {
	switch cmd.Command {
	case mqtt.COMMAND_SWITCH:
		sw, ok := table.SwitchById(cmd.DeviceId)
		if !ok {
			return nil, nil
		}
		on, err := parseSwitchPayload(cmd.Payload)
		if err != nil {
			return nil, err
		}
		switch sw.Command {
		case domain.COMMAND_SET_LOCK_STATE:
			return domain.SetLockStateRequest{Locked: on}, nil
		case domain.COMMAND_SET_AUTO_MODE:
			return domain.SetAutoModeRequest{On: on}, nil
		}
	case mqtt.COMMAND_NUMBER:
		num, ok := table.NumberById(cmd.DeviceId)
		if !ok {
			return nil, nil
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(cmd.Payload), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not a number", domain.ErrInvalidCommand, cmd.Payload)
		}
		if num.Command == domain.COMMAND_SET_CHARGING_CURRENT {
			return domain.SetChargingCurrentRequest{Value: value}, nil
		}
	case mqtt.COMMAND_SELECT:
		sel, ok := table.SelectById(cmd.DeviceId)
		if !ok {
			return nil, nil
		}
		if sel.Command == domain.COMMAND_SET_CHARGING_MODE {
			return domain.SetChargingModeRequest{Mode: strings.TrimSpace(cmd.Payload)}, nil
		}
	}
	return nil, nil
}

func parseSwitchPayload(payload string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case mqtt.MQTT_PAYLOAD_ON, "true", "1":
		return true, nil
	case mqtt.MQTT_PAYLOAD_OFF, "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: unknown switch payload %q", domain.ErrInvalidCommand, payload)
}
