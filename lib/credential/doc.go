// Package credential supplies secrets needed at boot, such as the sudo
// password used to install address blocks in the host firewall.
//
// Providers are tried in order by a Chain. Env reads the environment, Terminal
// prompts on an interactive terminal without echo and refuses to read from
// anything else, so a password never ends up in plain text on a pipe.
package credential
