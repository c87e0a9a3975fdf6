package shapefile

// ProjectionWKT is the constant .prj sidecar accompanying every encoded
// dataset. All geometry is geographic WGS84 degrees; nothing is computed.
const ProjectionWKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
