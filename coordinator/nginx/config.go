// Copyright 2024 Canonical, Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nginx

import (
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/canonical/loki-coordinator/common/collection"
	"github.com/canonical/loki-coordinator/coordinator/roles"
)

const (
	ConfigPath = "/etc/nginx/nginx.conf"
	CertPath   = "/etc/nginx/certs/server.cert"
	KeyPath    = "/etc/nginx/certs/server.key"

	// workerPool is the synthetic upstream that unions every role-specific
	// pool, so role-agnostic endpoints load-balance across the whole fleet.
	workerPool = "worker"

	tlsPort         = 443
	workerHTTPPort  = 3100
	defaultResolver = "kube-dns.kube-system.svc.cluster.local."
)

// Params is the input of one proxy-config synthesis run.
type Params struct {
	AddressesByRole map[roles.Role][]string
	Port            int
	TLSEnabled      bool
	IPv6Enabled     bool
	ResolverAddress string
	ServerName      string
}

// Build assembles the complete proxy configuration. It always produces a
// valid document: with no worker addresses at all the server block still
// serves the health and status endpoints, since the proxy process needs
// this file to start.
func Build(params Params) []Directive {
	return []Directive{
		{Name: "worker_processes", Args: []string{"5"}},
		{Name: "error_log", Args: []string{"/dev/stderr", "error"}},
		{Name: "pid", Args: []string{"/tmp/nginx.pid"}},
		{Name: "worker_rlimit_nofile", Args: []string{"8192"}},
		{Name: "events", Args: []string{}, Block: []Directive{
			{Name: "worker_connections", Args: []string{"4096"}},
		}},
		{Name: "http", Args: []string{}, Block: httpBlock(params)},
	}
}

func httpBlock(params Params) []Directive {
	block := upstreams(params.AddressesByRole)

	block = append(block,
		Directive{Name: "client_body_temp_path", Args: []string{"/tmp/client_temp"}},
		Directive{Name: "proxy_temp_path", Args: []string{"/tmp/proxy_temp_path"}},
		Directive{Name: "fastcgi_temp_path", Args: []string{"/tmp/fastcgi_temp"}},
		Directive{Name: "uwsgi_temp_path", Args: []string{"/tmp/uwsgi_temp"}},
		Directive{Name: "scgi_temp_path", Args: []string{"/tmp/scgi_temp"}},
		Directive{Name: "default_type", Args: []string{"application/octet-stream"}},
		Directive{Name: "log_format", Args: []string{
			"main",
			`'$remote_addr - $remote_user [$time_local]  $status "$request" $body_bytes_sent "$http_referer" "$http_user_agent" "$http_x_forwarded_for"'`,
		}},
	)
	block = append(block, accessLog(false)...)
	block = append(block,
		Directive{Name: "sendfile", Args: []string{"on"}},
		Directive{Name: "tcp_nopush", Args: []string{"on"}},
		resolver(""),
		// The backend requires the multitenancy header to always be
		// present; default it to the anonymous tenant when the client
		// omits it.
		Directive{Name: "map", Args: []string{"$http_x_scope_orgid", "$ensured_x_scope_orgid"}, Block: []Directive{
			{Name: "default", Args: []string{"$http_x_scope_orgid"}},
			{Name: "''", Args: []string{"anonymous"}},
		}},
		Directive{Name: "proxy_read_timeout", Args: []string{"300"}},
		server(params),
	)
	return block
}

func accessLog(verbose bool) []Directive {
	if verbose {
		return []Directive{
			{Name: "access_log", Args: []string{"/dev/stderr", "main"}},
		}
	}
	return []Directive{
		{Name: "map", Args: []string{"$status", "$loggable"}, Block: []Directive{
			{Name: "~^[23]", Args: []string{"0"}},
			{Name: "default", Args: []string{"1"}},
		}},
		{Name: "access_log", Args: []string{"/dev/stderr"}},
	}
}

// upstreams emits one pool per role with at least one address, iterated in
// sorted role order to keep the document stable across cycles, plus the
// synthetic worker pool that unions all of them.
func upstreams(addressesByRole map[roles.Role][]string) []Directive {
	pools := treemap.NewWithStringComparator()
	for role, addresses := range addressesByRole {
		pools.Put(string(role), addresses)
	}

	var directives []Directive
	all := collection.NewSet[string]()
	pools.Each(func(key any, value any) {
		addresses := value.([]string)
		// A pool with no servers would make the whole document invalid.
		if len(addresses) == 0 {
			return
		}
		servers := make([]Directive, len(addresses))
		for i, addr := range addresses {
			all.Add(addr)
			servers[i] = Directive{Name: "server", Args: []string{fmt.Sprintf("%s:%d", addr, workerHTTPPort)}}
		}
		directives = append(directives, Directive{Name: "upstream", Args: []string{key.(string)}, Block: servers})
	})

	if len(directives) > 0 {
		servers := make([]Directive, 0, all.Count())
		for _, addr := range all.GetSorted() {
			servers = append(servers, Directive{Name: "server", Args: []string{fmt.Sprintf("%s:%d", addr, workerHTTPPort)}})
		}
		directives = append(directives, Directive{Name: "upstream", Args: []string{workerPool}, Block: servers})
	}

	return directives
}

// locations builds the ordered routing rules. First match wins; rules for a
// role are omitted entirely when that role has no addresses so the proxy
// never references an empty pool.
func locations(addressesByRole map[roles.Role][]string) []Directive {
	directives := locationsBasic()

	if len(addressesByRole[roles.Write]) > 0 {
		directives = append(directives, locationsWrite()...)
	}
	if len(addressesByRole[roles.Backend]) > 0 {
		directives = append(directives, locationsBackend()...)
	}
	if len(addressesByRole[roles.Read]) > 0 {
		directives = append(directives, locationsRead()...)
	}
	if hasWorkers(addressesByRole) {
		directives = append(directives, locationsWorker()...)
	}
	return directives
}

// hasWorkers reports whether any role pool has at least one address. A role
// key with an empty slice does not count: no pool is emitted for it.
func hasWorkers(addressesByRole map[roles.Role][]string) bool {
	for _, addresses := range addressesByRole {
		if len(addresses) > 0 {
			return true
		}
	}
	return false
}

func locationsBasic() []Directive {
	return []Directive{
		{Name: "location", Args: []string{"=", "/"}, Block: []Directive{
			{Name: "return", Args: []string{"200", "'OK'"}},
			{Name: "auth_basic", Args: []string{"off"}},
		}},
		// Scraped by the nginx prometheus exporter.
		{Name: "location", Args: []string{"=", "/status"}, Block: []Directive{
			{Name: "stub_status", Args: []string{}},
		}},
	}
}

func locationsWrite() []Directive {
	return []Directive{
		proxyLocation("=", "/loki/api/v1/push", "http://write"),
	}
}

func locationsBackend() []Directive {
	return []Directive{
		proxyLocation("=", "/loki/api/v1/rules", "http://backend"),
		proxyLocation("=", "/prometheus", "http://backend"),
		proxyLocation("=", "/api/v1/rules", "http://backend/loki/api/v1/rules"),
	}
}

func locationsRead() []Directive {
	return []Directive{
		// The tail endpoint streams and must bypass the general read
		// regex below.
		proxyLocation("=", "/loki/api/v1/tail", "http://read"),
		{Name: "location", Args: []string{"~", "/loki/api/.*"}, Block: []Directive{
			{Name: "proxy_pass", Args: []string{"http://read"}},
			{Name: "proxy_set_header", Args: []string{"Upgrade", "$http_upgrade"}},
			{Name: "proxy_set_header", Args: []string{"Connection", "upgrade"}},
		}},
	}
}

func locationsWorker() []Directive {
	return []Directive{
		proxyLocation("=", "/loki/api/v1/format_query", "http://worker"),
		proxyLocation("=", "/loki/api/v1/status/buildinfo", "http://worker"),
		proxyLocation("=", "/ring", "http://worker"),
	}
}

func proxyLocation(modifier, match, target string) Directive {
	return Directive{
		Name: "location",
		Args: []string{modifier, match},
		Block: []Directive{
			{Name: "proxy_pass", Args: []string{target}},
		},
	}
}

func server(params Params) Directive {
	if params.TLSEnabled {
		block := listen(tlsPort, true, params.IPv6Enabled)
		block = append(block,
			Directive{Name: "proxy_set_header", Args: []string{"X-Scope-OrgID", "$ensured_x_scope_orgid"}},
			Directive{Name: "server_name", Args: []string{params.ServerName}},
			Directive{Name: "ssl_certificate", Args: []string{CertPath}},
			Directive{Name: "ssl_certificate_key", Args: []string{KeyPath}},
			Directive{Name: "ssl_protocols", Args: []string{"TLSv1", "TLSv1.1", "TLSv1.2"}},
			Directive{Name: "ssl_ciphers", Args: []string{"HIGH:!aNULL:!MD5"}},
			// Worker pod IPs are ephemeral: an explicit resolver with
			// short-lived caching avoids routing to recycled IPs.
			resolver(params.ResolverAddress),
		)
		block = append(block, locations(params.AddressesByRole)...)
		return Directive{Name: "server", Args: []string{}, Block: block}
	}

	block := listen(params.Port, false, params.IPv6Enabled)
	block = append(block,
		Directive{Name: "proxy_set_header", Args: []string{"X-Scope-OrgID", "$ensured_x_scope_orgid"}},
		resolver(params.ResolverAddress),
	)
	block = append(block, locations(params.AddressesByRole)...)
	return Directive{Name: "server", Args: []string{}, Block: block}
}

// listen emits the listen directive twice, in IPv4 and `[::]` form, iff
// IPv6 is enabled on the host network stack.
func listen(port int, ssl bool, ipv6 bool) []Directive {
	directives := []Directive{
		{Name: "listen", Args: listenArgs(port, false, ssl)},
	}
	if ipv6 {
		directives = append(directives, Directive{Name: "listen", Args: listenArgs(port, true, ssl)})
	}
	return directives
}

func listenArgs(port int, ipv6 bool, ssl bool) []string {
	var args []string
	if ipv6 {
		args = append(args, fmt.Sprintf("[::]:%d", port))
	} else {
		args = append(args, fmt.Sprintf("%d", port))
	}
	if ssl {
		args = append(args, "ssl")
	}
	return args
}

func resolver(custom string) Directive {
	if custom != "" {
		return Directive{Name: "resolver", Args: []string{custom}}
	}
	return Directive{Name: "resolver", Args: []string{defaultResolver}}
}
