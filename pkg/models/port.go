package models

// Connection is a directed edge from an output port to an input port.
// Ports are addressed as "{nodeID}:{portID}".
type Connection struct {
	ID         string `json:"id"`
	SourcePort string `json:"sourcePort" validate:"required"`
	TargetPort string `json:"targetPort" validate:"required"`
}

// SourceNodeID returns the node id of the source port.
func (c Connection) SourceNodeID() string {
	nodeID, _, _ := ParsePortID(c.SourcePort)

	return nodeID
}

// SourcePortID returns the port id of the source port.
func (c Connection) SourcePortID() string {
	_, portID, _ := ParsePortID(c.SourcePort)

	return portID
}

// TargetNodeID returns the node id of the target port.
func (c Connection) TargetNodeID() string {
	nodeID, _, _ := ParsePortID(c.TargetPort)

	return nodeID
}

// TargetPortID returns the port id of the target port.
func (c Connection) TargetPortID() string {
	_, portID, _ := ParsePortID(c.TargetPort)

	return portID
}

// ParsePortID parses a port ID in format "{nodeID}:{portID}" into components.
func ParsePortID(portID string) (string, string, bool) {
	for i := range len(portID) {
		if portID[i] == ':' {
			return portID[:i], portID[i+1:], true
		}
	}

	return "", "", false
}

// MakePortID creates a port ID from node ID and port name.
func MakePortID(nodeID, portName string) string {
	return nodeID + ":" + portName
}
