// Package config provides application configuration management.
//
// # Overview
//
// Configuration comes from three layers, later layers winning: built-in
// defaults, an optional YAML file named by SAMLBRIDGE_CONFIG_FILE, and
// SAMLBRIDGE_* environment variables. The role-population rule string can
// also live in its own file and be hot-reloaded through Watcher.
//
// # Configuration Structure
//
// Server settings:
//
//	SAMLBRIDGE_HOST="0.0.0.0"
//	SAMLBRIDGE_PORT="8080"
//	SAMLBRIDGE_HEALTH_PORT="9090"
//	SAMLBRIDGE_READ_TIMEOUT="15s"
//	SAMLBRIDGE_WRITE_TIMEOUT="15s"
//
// SAML settings:
//
//	SAMLBRIDGE_ACTIVATED="true"
//	SAMLBRIDGE_IDP_ENTITY_ID="https://idp.example.com"
//	SAMLBRIDGE_IDP_SSO_URL="https://idp.example.com/sso"
//	SAMLBRIDGE_IDP_SLO_URL="https://idp.example.com/slo"
//	SAMLBRIDGE_IDP_CERT_FILE="/etc/samlbridge/idp.pem"
//	SAMLBRIDGE_SP_BASE_URL="https://sp.example.com"
//
// Identity settings:
//
//	SAMLBRIDGE_REGISTER_USERS="true"
//	SAMLBRIDGE_AUTO_LINK_EXISTING="false"
//	SAMLBRIDGE_UNIQUE_ID_ATTR="eduPersonPrincipalName"
//	SAMLBRIDGE_USER_NAME_ATTR="uid"
//	SAMLBRIDGE_MAIL_ATTR="mail"
//	SAMLBRIDGE_SYNC_USER_NAME="false"
//	SAMLBRIDGE_SYNC_MAIL="false"
//
// Role settings:
//
//	SAMLBRIDGE_ROLE_POPULATION="staff:eduPersonAffiliation,=,staff"
//	SAMLBRIDGE_ROLE_POPULATION_FILE="/etc/samlbridge/roles.rules"
//	SAMLBRIDGE_ROLE_EVAL_EVERY_TIME="false"
//
// Local-login policy:
//
//	SAMLBRIDGE_ALLOW_DEFAULT_LOGIN="true"
//	SAMLBRIDGE_ALLOW_DEFAULT_LOGIN_USERS="1,2"
//	SAMLBRIDGE_ALLOW_DEFAULT_LOGIN_ROLES="administrator"
//
// Storage settings:
//
//	SAMLBRIDGE_POSTGRES_URL="postgres://localhost/samlbridge"
//	SAMLBRIDGE_SESSION_BACKEND="postgres"  # postgres, redis
//	SAMLBRIDGE_REDIS_URL="redis://localhost:6379"
//	SAMLBRIDGE_SESSION_TTL="8h"
package config
