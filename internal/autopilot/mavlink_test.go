package autopilot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/ridgeline-robotics/conenav/internal/mission"
)

var errBoom = errors.New("boom")

type recordingSender struct {
	sent []message.Message
	err  error
}

func (s *recordingSender) WriteMessageAll(msg message.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newTestBridge(sender Sender) *MAVLinkBridge {
	b := NewMAVLinkBridge(sender, 255, 1, 1)
	b.sleep = func(time.Duration) {} // no real sleeping in tests
	return b
}

func TestArmSendsCommandLongAndSettles(t *testing.T) {
	sender := &recordingSender{}
	b := newTestBridge(sender)
	var slept time.Duration
	b.sleep = func(d time.Duration) { slept = d }

	if err := b.Arm(context.Background(), true); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 message sent, got %d", len(sender.sent))
	}
	cmd, ok := sender.sent[0].(*common.MessageCommandLong)
	if !ok {
		t.Fatalf("expected MessageCommandLong, got %T", sender.sent[0])
	}
	if cmd.Command != common.MAV_CMD_COMPONENT_ARM_DISARM || cmd.Param1 != 1 {
		t.Errorf("unexpected arm command: %+v", cmd)
	}
	if slept != settleDelay {
		t.Errorf("expected settle delay %v, got %v", settleDelay, slept)
	}
}

func TestArmDisarmSetsParam1Zero(t *testing.T) {
	sender := &recordingSender{}
	b := newTestBridge(sender)

	if err := b.Arm(context.Background(), false); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	cmd := sender.sent[0].(*common.MessageCommandLong)
	if cmd.Param1 != 0 {
		t.Errorf("disarm: param1 = %v, want 0", cmd.Param1)
	}
}

func TestSetModeUnrecognizedMode(t *testing.T) {
	sender := &recordingSender{}
	b := newTestBridge(sender)
	if err := b.SetMode(context.Background(), Mode("BOGUS")); err == nil {
		t.Error("expected error for unrecognized mode")
	}
}

func TestSetModeEncodesCustomMode(t *testing.T) {
	sender := &recordingSender{}
	b := newTestBridge(sender)

	if err := b.SetMode(context.Background(), ModeGuided); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	cmd := sender.sent[0].(*common.MessageCommandLong)
	if cmd.Command != common.MAV_CMD_DO_SET_MODE {
		t.Errorf("command = %v, want MAV_CMD_DO_SET_MODE", cmd.Command)
	}
	if uint32(cmd.Param2) != customModeFor[ModeGuided] {
		t.Errorf("param2 = %v, want %v", cmd.Param2, customModeFor[ModeGuided])
	}
}

func TestSetParameterRejectsLongNames(t *testing.T) {
	sender := &recordingSender{}
	b := newTestBridge(sender)
	err := b.SetParameter(context.Background(), "THIS_NAME_IS_WAY_TOO_LONG", IntParam(1))
	if err == nil {
		t.Error("expected error for over-long parameter name")
	}
}

func TestOverrideRCMapsAllEightChannels(t *testing.T) {
	sender := &recordingSender{}
	b := newTestBridge(sender)
	var override ServoOverride
	for i := range override {
		override[i] = uint16(1000 + i)
	}

	if err := b.OverrideRC(context.Background(), override); err != nil {
		t.Fatalf("OverrideRC: %v", err)
	}
	msg := sender.sent[0].(*common.MessageRcChannelsOverride)
	if msg.Chan1Raw != 1000 || msg.Chan8Raw != 1007 {
		t.Errorf("channel mapping wrong: %+v", msg)
	}
}

func TestPushWaypointsSendsCountThenItems(t *testing.T) {
	sender := &recordingSender{}
	b := newTestBridge(sender)
	waypoints := []mission.Waypoint{{Lat: 1, Lon: 2}, {Lat: 3, Lon: 4}}

	if err := b.PushWaypoints(context.Background(), waypoints); err != nil {
		t.Fatalf("PushWaypoints: %v", err)
	}
	if len(sender.sent) != 3 {
		t.Fatalf("expected count + 2 items = 3 messages, got %d", len(sender.sent))
	}
	count, ok := sender.sent[0].(*common.MessageMissionCount)
	if !ok || count.Count != 2 {
		t.Errorf("expected MessageMissionCount{Count: 2}, got %+v", sender.sent[0])
	}
	first := sender.sent[1].(*common.MessageMissionItemInt)
	if first.Current != 1 || first.Seq != 0 {
		t.Errorf("first item should be current and seq 0, got %+v", first)
	}
	second := sender.sent[2].(*common.MessageMissionItemInt)
	if second.Current != 0 || second.Seq != 1 {
		t.Errorf("second item should not be current and seq 1, got %+v", second)
	}
}

func TestSendWrapsSenderError(t *testing.T) {
	sender := &recordingSender{err: errBoom}
	b := newTestBridge(sender)
	if err := b.Arm(context.Background(), true); err == nil {
		t.Error("expected wrapped sender error")
	}
}
