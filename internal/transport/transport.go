// Package transport provides the platform implementations of the
// devices.Transport boundary. On Linux events are injected by writing
// input_event records straight to the selected /dev/input/event* nodes;
// other platforms currently get a stub that fails construction.
package transport
