package main

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mastercactapus/proxscan/config"
	"github.com/mastercactapus/proxscan/gcode"
	"github.com/mastercactapus/proxscan/machine"
	"github.com/mastercactapus/proxscan/machine/fake"
	"github.com/mastercactapus/proxscan/machine/grbl"
	"github.com/mastercactapus/proxscan/spjs"
)

// openActuator connects to the configured controller and returns one Axis
// per controller axis.
func openActuator(cfg *config.Config, log *zap.SugaredLogger) (map[string]*machine.Axis, func() error, error) {
	settle := cfg.SettleOptions()
	act := cfg.Actuator

	if act.Kind == config.ActuatorFake {
		axes := make(map[string]*machine.Axis)
		for _, name := range []string{"X", "Y", "Z"} {
			drv := fake.NewDriver(0)
			drv.MovePolls = 2
			axes[name] = machine.NewAxis(name, drv, settle, log)
		}
		log.Warn("using simulated actuator")
		return axes, func() error { return nil }, nil
	}

	var (
		adapter machine.Adapter
		closeFn func() error
	)
	switch act.Kind {
	case config.ActuatorGrblSerial:
		a, err := grbl.OpenSerial(act.Port, act.Baud, act.PollInterval, log.Named("grbl"))
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", act.Port, err)
		}
		adapter, closeFn = a, a.Close
	case config.ActuatorGrblSPJS:
		sp := spjs.NewSPJS(act.SPJSURL, log.Named("spjs"))
		a := grbl.NewSPJSAdapter(sp, act.Port, act.Baud, act.PollInterval, log.Named("grbl"))
		adapter = a
		closeFn = func() error { return multierr.Combine(a.Close(), sp.Close()) }
	default:
		return nil, nil, fmt.Errorf("unknown actuator kind %q", act.Kind)
	}

	m := machine.NewMachine(adapter)
	if act.Setup != "" {
		blocks, err := gcode.Parse(act.Setup)
		if err == nil {
			err = m.Setup(blocks)
		}
		if err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("actuator setup: %w", err), closeFn())
		}
	}

	axes := make(map[string]*machine.Axis)
	for _, name := range m.Devices() {
		drv, err := m.Driver(name)
		if err != nil {
			return nil, nil, multierr.Append(err, closeFn())
		}
		axes[name] = machine.NewAxis(name, drv, settle, log)
	}
	log.Infow("actuator connected", "kind", act.Kind, "port", act.Port, "axes", m.Devices())
	return axes, closeFn, nil
}
