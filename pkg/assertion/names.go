package assertion

import "strings"

// oidRegistry maps urn:oid attribute names to friendly names and back, for
// the attributes SAML IdPs most commonly assert.
var oidRegistry = map[string]string{
	// eduPerson
	"urn:oid:1.3.6.1.4.1.5923.1.1.1.6": "eduPersonPrincipalName",
	"eduPersonPrincipalName":           "urn:oid:1.3.6.1.4.1.5923.1.1.1.6",
	"urn:oid:1.3.6.1.4.1.5923.1.1.1.7": "eduPersonEntitlement",
	"eduPersonEntitlement":             "urn:oid:1.3.6.1.4.1.5923.1.1.1.7",
	"urn:oid:1.3.6.1.4.1.5923.1.1.1.9": "eduPersonScopedAffiliation",
	"eduPersonScopedAffiliation":       "urn:oid:1.3.6.1.4.1.5923.1.1.1.9",

	// LDAP
	"urn:oid:0.9.2342.19200300.100.1.1": "uid",
	"uid":                               "urn:oid:0.9.2342.19200300.100.1.1",
	"urn:oid:0.9.2342.19200300.100.1.3": "mail",
	"mail":                              "urn:oid:0.9.2342.19200300.100.1.3",
	"urn:oid:2.5.4.42":                  "givenName",
	"givenName":                         "urn:oid:2.5.4.42",
	"urn:oid:2.5.4.4":                   "sn",
	"sn":                                "urn:oid:2.5.4.4",
	"urn:oid:2.16.840.1.113730.3.1.241": "displayName",
	"displayName":                       "urn:oid:2.16.840.1.113730.3.1.241",
}

// attributeAlias returns the OID form for a friendly name, or the friendly
// name for an OID. Unknown names have no alias.
func attributeAlias(name string) (string, bool) {
	alias, ok := oidRegistry[name]
	return alias, ok
}

// IsOIDName reports whether the attribute name is in urn:oid form.
func IsOIDName(name string) bool {
	return strings.HasPrefix(name, "urn:oid:")
}
