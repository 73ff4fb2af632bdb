// Package config loads the agent configuration.
//
// Files are YAML (.yaml, .yml) or JSON (anything else):
//
//	log:
//	  level: info
//	  format: json
//	metrics:
//	  addr: 127.0.0.1:9464
//	storage:
//	  path: /var/lib/logwire/state.json
//	listeners:
//	  - id: syslog
//	    tag: syslog.tcp
//	    port: 5170
//	    keepalive: 30        # seconds, or "unlimited"
//	    delimiter: "\n"
//	    source_address_key: client
//	routes:
//	  - match: "syslog.**"
//	    outputs:
//	      - type: stdout
//	      - type: filter
//	        expression: 'record.message contains "error"'
//	        outputs:
//	          - type: mqtt
//	            broker: tcp://127.0.0.1:1883
//	            topic_prefix: logs/
//
// Environment variables with the LOGWIRE_ prefix override file values; see
// ApplyEnv.
package config
