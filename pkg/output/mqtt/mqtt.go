package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/home-env-log/pkg/config"
	"github.com/ericogr/home-env-log/pkg/output"
	"github.com/ericogr/home-env-log/pkg/sensor"
	"github.com/sirupsen/logrus"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "home-env-log"
	DefaultStateTopic = "home-env-log/state"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	keyDevice              = "device"
	stateClassMeasurement  = "measurement"
)

// quantity is one Home Assistant sensor entity derived from a measurement.
type quantity struct {
	key         string
	name        string
	unit        string
	deviceClass string
	field       string
}

var quantities = []quantity{
	{key: "temperature", name: "Temperature", unit: "°C", deviceClass: "temperature", field: "temperature"},
	{key: "humidity", name: "Humidity", unit: "%", deviceClass: "humidity", field: "humidity"},
	{key: "pressure", name: "Pressure", unit: "hPa", deviceClass: "atmospheric_pressure", field: "pressure"},
	{key: "co2", name: "CO2", unit: "ppm", deviceClass: "carbon_dioxide", field: "co2_concentration"},
}

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
}

func NewMQTT(cfg config.MQTTConfig, log logrus.FieldLogger) (output.Output, error) {
	cfg = withDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newWithClient(client, cfg, log), nil
}

// newWithClient publishes the discovery payloads, if requested, and returns
// an output publishing state on client.
func newWithClient(client mqtt.Client, cfg config.MQTTConfig, log logrus.FieldLogger) *MQTTOutput {
	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic}
	if cfg.DiscoveryTopic == "" {
		return m
	}
	uid := discoveryUniqueID(cfg)
	for _, q := range quantities {
		topic := discoveryTopic(cfg.DiscoveryTopic, uid, q.key)
		payload := discoveryPayload(cfg, q)
		if err := publishJSON(client, topic, true, payload); err != nil {
			log.WithError(err).WithField("topic", topic).Warn("mqtt discovery publish failed")
		}
	}
	return m
}

func (m *MQTTOutput) Publish(ms sensor.Measurement) error {
	b, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	return m.PublishRaw(m.stateTopic, b, false)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

func withDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	return cfg
}

// discoveryTopic formats base with the quantity key when it contains %s,
// otherwise base is the discovery prefix, e.g. "homeassistant".
func discoveryTopic(base, uid, key string) string {
	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, key)
	}
	return fmt.Sprintf("%s/sensor/%s_%s/config", strings.TrimSuffix(base, "/"), uid, key)
}

func discoveryName(cfg config.MQTTConfig) string {
	if cfg.DiscoveryName != "" {
		return cfg.DiscoveryName
	}
	return fmt.Sprintf("Home Env %s", cfg.ClientID)
}

func discoveryUniqueID(cfg config.MQTTConfig) string {
	if cfg.DiscoveryUniqueID != "" {
		return cfg.DiscoveryUniqueID
	}
	return cfg.ClientID
}

func discoveryPayload(cfg config.MQTTConfig, q quantity) map[string]interface{} {
	uid := discoveryUniqueID(cfg)
	name := discoveryName(cfg)
	return map[string]interface{}{
		keyName:                fmt.Sprintf("%s %s", name, q.name),
		keyStateTopic:          cfg.StateTopic,
		keyUnitOfMeasurement:   q.unit,
		keyDeviceClass:         q.deviceClass,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       fmt.Sprintf("{{ value_json.%s }}", q.field),
		keyJSONAttributesTopic: cfg.StateTopic,
		keyUniqueID:            fmt.Sprintf("%s_%s", uid, q.key),
		keyDevice: map[string]interface{}{
			"identifiers": []string{uid},
			"name":        name,
		},
	}
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
