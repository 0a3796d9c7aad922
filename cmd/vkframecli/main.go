package main

import (
	"encoding/json"
	"os"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/gfx/vkr"
	"github.com/sirupsen/logrus"
)

func main() {
	configuration, err := core.LoadConfiguration(".env")
	if err != nil {
		logrus.WithError(err).Fatal("configuration")
	}
	log, err := core.NewLogger(configuration.Log)
	if err != nil {
		logrus.WithError(err).Fatal("logger")
	}
	log.SetOutput(os.Stderr)

	instance, err := vkr.NewInstance(nil, vkr.InstanceConfig{
		ApplicationName: configuration.Instance.ApplicationName,
		Extensions:      configuration.Instance.Extensions,
		Layers:          configuration.Instance.Layers,
		Debug:           configuration.Instance.Debug,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("vulkan instance")
	}
	defer instance.Release()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(instance.PhysicalDevicesInfo()); err != nil {
		log.WithError(err).Error("encode")
	}
}
